package domain

import (
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Artifact
var (
	ErrEmptyArtifactID      = errors.New("artifact ID cannot be empty")
	ErrEmptyArtifactOwnerID = errors.New("artifact owner ID cannot be empty")
	ErrEmptyFileName        = errors.New("artifact file name cannot be empty")
	ErrNegativeSize         = errors.New("artifact size cannot be negative")
	ErrInconsistentRetry    = errors.New("retry count and last failure time must be set together")
)

var audioExtensions = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"m4a":  true,
	"flac": true,
	"aac":  true,
	"ogg":  true,
}

var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// Artifact is an uploaded file tracked through the processing pipeline.
// RetryCount and LastFailedAt stay nil until the first failure.
type Artifact struct {
	ID            uuid.UUID        `json:"id"`
	OwnerID       uuid.UUID        `json:"owner_id"`
	FileName      string           `json:"file_name"`
	ContentType   string           `json:"content_type"`
	Extension     string           `json:"extension"`
	SizeBytes     int64            `json:"size_bytes"`
	Directory     string           `json:"directory"`
	Location      string           `json:"location"`
	Status        ProcessingStatus `json:"status"`
	RetryCount    *int             `json:"retry_count,omitempty"`
	LastFailedAt  *time.Time       `json:"last_failed_at,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Version       int              `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewArtifact creates an artifact in UPLOADED status for a file that has
// already been written to storage at location.
func NewArtifact(
	ownerID uuid.UUID,
	fileName, contentType, directory, location string,
	size int64,
) (*Artifact, error) {
	now := time.Now().UTC()
	a := &Artifact{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		FileName:    fileName,
		ContentType: contentType,
		Extension:   ExtensionOf(fileName),
		SizeBytes:   size,
		Directory:   directory,
		Location:    location,
		Status:      StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	return a, nil
}

// Validate checks if the Artifact has valid data.
func (a *Artifact) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyArtifactID
	}

	if a.OwnerID == uuid.Nil {
		return ErrEmptyArtifactOwnerID
	}

	if strings.TrimSpace(a.FileName) == "" {
		return ErrEmptyFileName
	}

	if a.SizeBytes < 0 {
		return ErrNegativeSize
	}

	if !a.Status.Valid() {
		return ErrInvalidStatus
	}

	if (a.RetryCount == nil) != (a.LastFailedAt == nil) {
		return ErrInconsistentRetry
	}

	return nil
}

// Retries returns the number of recorded failures.
func (a *Artifact) Retries() int {
	if a.RetryCount == nil {
		return 0
	}
	return *a.RetryCount
}

// IsAudio reports whether the artifact is a supported audio file.
func (a *Artifact) IsAudio() bool {
	return audioExtensions[a.ext()] || strings.HasPrefix(a.ContentType, "audio/")
}

// IsWav reports whether the artifact is already in the canonical wav format.
func (a *Artifact) IsWav() bool {
	return a.ext() == "wav"
}

// IsImage reports whether the artifact is a supported image file.
func (a *Artifact) IsImage() bool {
	return imageExtensions[a.ext()] || strings.HasPrefix(a.ContentType, "image/")
}

// InDirectory reports whether the artifact was uploaded under dir.
func (a *Artifact) InDirectory(dir string) bool {
	d := strings.Trim(a.Directory, "/")
	return d == strings.Trim(dir, "/") || strings.HasPrefix(d, strings.Trim(dir, "/")+"/")
}

// SizeMB returns the size in whole megabytes, rounded up.
func (a *Artifact) SizeMB() int64 {
	const mb = 1024 * 1024
	return (a.SizeBytes + mb - 1) / mb
}

func (a *Artifact) ext() string {
	if a.Extension != "" {
		return strings.ToLower(strings.TrimPrefix(a.Extension, "."))
	}
	return ExtensionOf(a.FileName)
}

// ExtensionOf returns the lower-case extension of name without the dot.
func ExtensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}
