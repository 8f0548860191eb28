// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RecordStoreMemory   = "memory"
	RecordStorePostgres = "postgres"

	StorageMemory = "memory"
	StorageS3     = "s3"

	DispatchInProc = "inproc"
	DispatchNATS   = "nats"
)

type Config struct {
	HTTPAddr   string
	AdminToken string
	LogLevel   string
	LogFormat  string

	RecordStore string
	DatabaseURL string

	StorageBackend string
	S3             S3

	Dispatch      string
	NATSURL       string
	JobSubject    string
	WorkerQueue   string
	EventsSubject string
	ThumbWidth    int
	ThumbHeight   int
	MaxImageBytes int64
	Workers       int
	QueueSize     int
	FetchTimeout  time.Duration
	JobTimeout    time.Duration
}

type S3 struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	PublicBaseURL   string
}

// Load reads a .env file when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		AdminToken:     getenv("ADMIN_TOKEN", ""),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "text"),
		RecordStore:    strings.ToLower(getenv("RECORD_STORE", RecordStoreMemory)),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		StorageBackend: strings.ToLower(getenv("DEFAULT_STORAGE_BACKEND", StorageMemory)),
		S3: S3{
			Bucket:          getenv("AWS_S3_BUCKET", ""),
			Region:          getenv("AWS_S3_REGION", "us-east-1"),
			AccessKeyID:     getenv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getenv("AWS_S3_ENDPOINT", ""),
			UsePathStyle:    getenvBool("AWS_S3_USE_PATH_STYLE", true),
			PublicBaseURL:   getenv("AWS_S3_PUBLIC_URL", ""),
		},
		Dispatch:      strings.ToLower(getenv("PIPELINE_DISPATCH", DispatchInProc)),
		NATSURL:       getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JobSubject:    getenv("PROCESS_SUBJECT", "islands.photo.changed"),
		WorkerQueue:   getenv("PROCESS_QUEUE", "thumbnail-workers"),
		EventsSubject: getenv("SUBJECT_THUMBNAIL_EVENTS", "islands.thumbnail.events"),
	}

	var err error
	if cfg.ThumbWidth, err = parsePositiveInt(getenv("THUMB_WIDTH", "250"), "THUMB_WIDTH"); err != nil {
		return Config{}, err
	}
	if cfg.ThumbHeight, err = parsePositiveInt(getenv("THUMB_HEIGHT", "250"), "THUMB_HEIGHT"); err != nil {
		return Config{}, err
	}
	maxBytes, err := parsePositiveInt(getenv("MAX_IMAGE_SIZE_BYTES", strconv.Itoa(5<<20)), "MAX_IMAGE_SIZE_BYTES")
	if err != nil {
		return Config{}, err
	}
	cfg.MaxImageBytes = int64(maxBytes)
	if cfg.Workers, err = parsePositiveInt(getenv("PIPELINE_WORKERS", "2"), "PIPELINE_WORKERS"); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize, err = parsePositiveInt(getenv("PIPELINE_QUEUE_SIZE", "64"), "PIPELINE_QUEUE_SIZE"); err != nil {
		return Config{}, err
	}
	if cfg.FetchTimeout, err = parseDuration(getenv("PIPELINE_FETCH_TIMEOUT", "10s"), "PIPELINE_FETCH_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.JobTimeout, err = parseDuration(getenv("PIPELINE_JOB_TIMEOUT", "1m"), "PIPELINE_JOB_TIMEOUT"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SharedBackends reports whether records and assets live outside the
// process, so a separate worker sees what the server wrote.
func (c Config) SharedBackends() bool {
	return c.RecordStore == RecordStorePostgres && c.StorageBackend == StorageS3
}

// Validate checks the settings the selected backends depend on.
func (c Config) Validate() error {
	var errs []error
	switch c.RecordStore {
	case RecordStoreMemory:
	case RecordStorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when RECORD_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RECORD_STORE %q", c.RecordStore))
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("AWS_S3_BUCKET is required when DEFAULT_STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DEFAULT_STORAGE_BACKEND %q", c.StorageBackend))
	}

	switch c.Dispatch {
	case DispatchInProc:
	case DispatchNATS:
		if c.NATSURL == "" || c.JobSubject == "" {
			errs = append(errs, errors.New("NATS_URL and PROCESS_SUBJECT are required when PIPELINE_DISPATCH=nats"))
		}
		if !c.SharedBackends() {
			errs = append(errs, errors.New("PIPELINE_DISPATCH=nats requires RECORD_STORE=postgres and DEFAULT_STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PIPELINE_DISPATCH %q", c.Dispatch))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "tint":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseDuration(value string, name string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %s)", name, d)
	}
	return d, nil
}
