package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. MEDIA_SERVER_PORT.
const EnvPrefix = "MEDIA"

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from config files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching for config.yaml. A missing explicit file is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal, including keys that default to empty.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.instance_id", "")
	v.SetDefault("server.lock_file", "")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("batch.enabled", true)
	v.SetDefault("batch.max_concurrent_jobs", 3)
	v.SetDefault("batch.batch_size", 5)
	v.SetDefault("batch.retry_attempts", 3)
	v.SetDefault("batch.retry_delay", 5*time.Second)
	v.SetDefault("batch.interval", 5*time.Second)
	v.SetDefault("batch.stuck_after", 30*time.Minute)
	v.SetDefault("batch.stuck_interval", 5*time.Minute)

	for kind, spec := range pool.DefaultSpecs() {
		prefix := "pools." + string(kind) + "."
		v.SetDefault(prefix+"core_size", spec.Pool.CoreSize)
		v.SetDefault(prefix+"max_size", spec.Pool.MaxSize)
		v.SetDefault(prefix+"queue_capacity", spec.Pool.QueueCapacity)
		v.SetDefault(prefix+"keep_alive", spec.Pool.KeepAlive)
		v.SetDefault(prefix+"await_termination", spec.Pool.AwaitTermination)
		v.SetDefault(prefix+"policy", spec.Pool.Policy.String())
		v.SetDefault(prefix+"permits", spec.Permits)
	}

	v.SetDefault("events.driver", "memory")
	v.SetDefault("events.topic", "media.processing")
	v.SetDefault("events.status_topic", "media.processing.status")
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.group_id", "media-pipeline")
	v.SetDefault("events.redis_url", "")
	v.SetDefault("events.max_retries", 3)
	v.SetDefault("events.retry_delay", 5*time.Minute)
	v.SetDefault("events.publish_attempts", 3)
	v.SetDefault("events.buffer", 256)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.base_url", "http://localhost:8080/files")
	v.SetDefault("storage.signing_secret", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.temp_dir", "")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.embedding_model", "text-embedding-004")
	v.SetDefault("gemini.max_audio_bytes", 20*1024*1024)
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay", 2*time.Second)

	v.SetDefault("jobs.ffmpeg_binary", "ffmpeg")
	v.SetDefault("jobs.max_image_width", 2048)
	v.SetDefault("jobs.max_image_height", 2048)
	v.SetDefault("jobs.image_quality", 85)
	v.SetDefault("jobs.thumbnail_size", 256)
	v.SetDefault("jobs.thumbnail_directory", "thumbnails/")
}
