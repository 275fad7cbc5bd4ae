package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig
	Upload    UploadConfig
	Storage   StorageConfig
	GCS       GCSConfig
	Minio     MinioConfig
	NATS      NATSConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port string `envconfig:"SERVER_PORT" default:"8080"`
	// ReadHeaderTimeout is the only read deadline: an upload that keeps
	// streaming is never cut off.
	ReadHeaderTimeout time.Duration `envconfig:"SERVER_READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"30s"`
	ShutdownPeriod    time.Duration `envconfig:"SERVER_SHUTDOWN_PERIOD" default:"30s"`
	AllowedOrigins    []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

type UploadConfig struct {
	Dir            string        `envconfig:"UPLOAD_DIR" default:"./downloads"`
	ProgressWindow time.Duration `envconfig:"UPLOAD_PROGRESS_WINDOW" default:"200ms"`
	ChunkSize      int           `envconfig:"UPLOAD_CHUNK_SIZE" default:"32768"`
	MaxBytes       int64         `envconfig:"UPLOAD_MAX_BYTES" default:"0"` // 0 means unlimited
	Owner          string        `envconfig:"LISTING_OWNER"`
}

type StorageConfig struct {
	Backend string `envconfig:"STORAGE_BACKEND" default:"disk"`
}

type GCSConfig struct {
	Bucket string `envconfig:"GCS_BUCKET"`
	Prefix string `envconfig:"GCS_PREFIX"`
}

type MinioConfig struct {
	Endpoint   string `envconfig:"MINIO_ENDPOINT"`
	BucketName string `envconfig:"MINIO_BUCKET_NAME"`
	AccessKey  string `envconfig:"MINIO_ACCESS_KEY"`
	SecretKey  string `envconfig:"MINIO_SECRET_KEY"`
	UseSSL     bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type NATSConfig struct {
	URL     string `envconfig:"NATS_URL"`
	Subject string `envconfig:"NATS_SUBJECT" default:"uploads"`
}

type RedisConfig struct {
	Addr    string `envconfig:"REDIS_ADDR"`
	Channel string `envconfig:"REDIS_CHANNEL" default:"uploads"`
}

type TelemetryConfig struct {
	LogLevel     string `envconfig:"LOG_LEVEL" default:"debug"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"go-drive-upload"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"` // tracing is off when empty
	OTLPInsecure bool   `envconfig:"OTLP_INSECURE" default:"true"`
	// TraceSampleRatio is the share of new traces recorded, from 0 to 1.
	TraceSampleRatio float64 `envconfig:"OTEL_TRACE_SAMPLE_RATIO" default:"1"`
}

const (
	BackendDisk  = "disk"
	BackendGCS   = "gcs"
	BackendMinio = "minio"
)

func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(cfg.Upload.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	cfg.Upload.Dir = dir
	if cfg.Upload.Owner == "" {
		cfg.Upload.Owner = os.Getenv("USER")
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendDisk:
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the %s backend", BackendGCS)
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET_NAME are required for the %s backend", BackendMinio)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Telemetry.TraceSampleRatio < 0 || c.Telemetry.TraceSampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACE_SAMPLE_RATIO must be between 0 and 1")
	}
	if c.Upload.ProgressWindow < 0 {
		return fmt.Errorf("UPLOAD_PROGRESS_WINDOW must not be negative")
	}
	return nil
}
