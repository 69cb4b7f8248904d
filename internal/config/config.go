package config

import (
	"fmt"
	"time"

	"github.com/phrazzld/media-pipeline/internal/pool"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Batch    BatchConfig    `mapstructure:"batch" validate:"required"`
	Pools    PoolsConfig    `mapstructure:"pools" validate:"required"`
	Events   EventsConfig   `mapstructure:"events" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Jobs     JobsConfig     `mapstructure:"jobs" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	InstanceID      string        `mapstructure:"instance_id"`
	LockFile        string        `mapstructure:"lock_file"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects and configures the artifact ledger.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL             string        `mapstructure:"url" validate:"required_if=Driver postgres,omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// BatchConfig controls the scheduled dispatcher.
type BatchConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs" validate:"gte=1"`
	BatchSize         int           `mapstructure:"batch_size" validate:"gte=1,lte=100"`
	RetryAttempts     int           `mapstructure:"retry_attempts" validate:"gte=0"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	Interval          time.Duration `mapstructure:"interval" validate:"gt=0"`
	StuckAfter        time.Duration `mapstructure:"stuck_after" validate:"gt=0"`
	StuckInterval     time.Duration `mapstructure:"stuck_interval" validate:"gt=0"`
}

// PoolConfig sizes one worker pool and its concurrency gate.
type PoolConfig struct {
	CoreSize         int           `mapstructure:"core_size" validate:"gte=0"`
	MaxSize          int           `mapstructure:"max_size" validate:"gte=1,gtefield=CoreSize"`
	QueueCapacity    int           `mapstructure:"queue_capacity" validate:"gte=0"`
	KeepAlive        time.Duration `mapstructure:"keep_alive" validate:"gt=0"`
	AwaitTermination time.Duration `mapstructure:"await_termination" validate:"gt=0"`
	Policy           string        `mapstructure:"policy" validate:"required,oneof=caller_runs discard_oldest abort"`
	Permits          int           `mapstructure:"permits" validate:"gte=1"`
}

// PoolsConfig holds one PoolConfig per pool kind.
type PoolsConfig struct {
	Conversion PoolConfig `mapstructure:"conversion" validate:"required"`
	Analysis   PoolConfig `mapstructure:"analysis" validate:"required"`
	Image      PoolConfig `mapstructure:"image" validate:"required"`
	Batch      PoolConfig `mapstructure:"batch" validate:"required"`
}

// Specs converts the pool settings into manager specs.
func (p PoolsConfig) Specs() (map[pool.Kind]pool.Spec, error) {
	byKind := map[pool.Kind]PoolConfig{
		pool.Conversion: p.Conversion,
		pool.Analysis:   p.Analysis,
		pool.Image:      p.Image,
		pool.Batch:      p.Batch,
	}

	specs := make(map[pool.Kind]pool.Spec, len(byKind))
	for kind, pc := range byKind {
		policy, err := pool.ParsePolicy(pc.Policy)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", kind, err)
		}
		specs[kind] = pool.Spec{
			Pool: pool.Config{
				Name:             string(kind),
				CoreSize:         pc.CoreSize,
				MaxSize:          pc.MaxSize,
				QueueCapacity:    pc.QueueCapacity,
				KeepAlive:        pc.KeepAlive,
				AwaitTermination: pc.AwaitTermination,
				Policy:           policy,
			},
			Permits: pc.Permits,
		}
	}
	return specs, nil
}

// EventsConfig selects the event bus backend and the retry policy of
// event consumers.
type EventsConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=memory kafka redis log"`
	Topic           string        `mapstructure:"topic" validate:"required"`
	StatusTopic     string        `mapstructure:"status_topic" validate:"required"`
	Brokers         []string      `mapstructure:"brokers" validate:"required_if=Driver kafka"`
	GroupID         string        `mapstructure:"group_id"`
	RedisURL        string        `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	PublishAttempts uint64        `mapstructure:"publish_attempts" validate:"gte=1"`
	Buffer          int           `mapstructure:"buffer" validate:"gte=1"`
}

// StorageConfig selects the blob storage backend.
type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"required,oneof=filesystem gcs memory"`
	BaseDir       string `mapstructure:"base_dir" validate:"required_if=Driver filesystem"`
	BaseURL       string `mapstructure:"base_url"`
	SigningSecret string `mapstructure:"signing_secret" validate:"required_if=Driver filesystem"`
	Bucket        string `mapstructure:"bucket" validate:"required_if=Driver gcs"`
	TempDir       string `mapstructure:"temp_dir"`
}

// GeminiConfig contains the settings of the voice analysis model.
// Voice analysis is disabled when APIKey is empty.
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model" validate:"required"`
	EmbeddingModel string `mapstructure:"embedding_model" validate:"required"`
	MaxAudioBytes  int64  `mapstructure:"max_audio_bytes" validate:"gt=0"`

	// MaxRetries bounds retries of transient API failures
	MaxRetries uint64        `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// JobsConfig tunes the individual processing jobs.
type JobsConfig struct {
	FFmpegBinary       string `mapstructure:"ffmpeg_binary" validate:"required"`
	MaxImageWidth      int    `mapstructure:"max_image_width" validate:"gt=0"`
	MaxImageHeight     int    `mapstructure:"max_image_height" validate:"gt=0"`
	ImageQuality       int    `mapstructure:"image_quality" validate:"gte=1,lte=100"`
	ThumbnailSize      int    `mapstructure:"thumbnail_size" validate:"gt=0"`
	ThumbnailDirectory string `mapstructure:"thumbnail_directory" validate:"required"`
}
