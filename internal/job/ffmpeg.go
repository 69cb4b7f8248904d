package job

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Converter transcodes the audio file at src into a wav file at dst.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// FFmpeg converts audio by running the ffmpeg binary.
type FFmpeg struct {
	Binary     string
	SampleRate int
	Channels   int
}

// NewFFmpeg returns a converter producing 44.1kHz stereo 16-bit PCM.
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary, SampleRate: 44100, Channels: 2}
}

// Convert runs ffmpeg and returns its output on failure.
func (f *FFmpeg) Convert(ctx context.Context, src, dst string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn",
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"-c:a", "pcm_s16le",
		dst,
	}
	cmd := exec.CommandContext(ctx, f.Binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg convert: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
