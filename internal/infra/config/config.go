package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TaskStoreRedis  = "redis"
	TaskStoreMemory = "memory"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// BaseURL is the externally reachable address of this service. Download
	// and callback URLs handed to the device are built from it.
	BaseURL string `yaml:"base_url"`
	BaseDir string `yaml:"base_dir"`

	QueueCapacity int `yaml:"queue_capacity"`
	PoolSize      int `yaml:"pool_size"`

	MaxUploadBytesMb int64 `yaml:"max_upload_mb"`

	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	CatalogPath string `yaml:"catalog_path"`
	ServiceName string `yaml:"service_name"`
	TaskStore   string `yaml:"task_store"`

	Redis     Redis     `yaml:"redis"`
	MinIO     MinIO     `yaml:"minio"`
	NATS      NATS      `yaml:"nats"`
	Converter Converter `yaml:"converter"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MinIO is optional. With an empty endpoint blobs live on local disk only.
type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	MaxRetries      int    `yaml:"max_retries"`
}

// NATS is optional. With an empty url sweeps run only from the ticker and
// the cleanup endpoint.
type NATS struct {
	URL           string `yaml:"url"`
	QueueName     string `yaml:"queue_name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Subject       string `yaml:"subject"`
}

// Converter points at a standalone container service. With an empty addr
// packages are converted in process.
type Converter struct {
	Addr         string        `yaml:"addr"`
	Listen       string        `yaml:"listen"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxMessageMb int           `yaml:"max_message_mb"`
	MaxParallel  int           `yaml:"max_parallel"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read file %q: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot unmarshal yaml: %w", err)
	}

	if cfg.Addr == "" {
		return nil, errors.New("config: addr is empty")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("config: base_url is empty")
	}
	if cfg.BaseDir == "" {
		return nil, errors.New("config: base_dir is empty")
	}
	if cfg.CatalogPath == "" {
		return nil, errors.New("config: catalog_path is empty")
	}
	if cfg.Retention < 0 {
		return nil, fmt.Errorf("config: retention must not be negative, got %s", cfg.Retention)
	}

	switch cfg.TaskStore {
	case "":
		cfg.TaskStore = TaskStoreRedis
	case TaskStoreRedis, TaskStoreMemory:
	default:
		return nil, fmt.Errorf("config: unknown task_store %q", cfg.TaskStore)
	}
	if cfg.TaskStore == TaskStoreRedis && cfg.Redis.Addr == "" {
		return nil, errors.New("config: redis.addr is empty")
	}
	if cfg.MinIO.Endpoint != "" && cfg.MinIO.Bucket == "" {
		return nil, errors.New("config: minio.bucket is empty")
	}
	if cfg.NATS.URL != "" && cfg.NATS.Subject == "" {
		return nil, errors.New("config: nats.subject is empty")
	}

	cfg.setDefaults()
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func (cfg *Config) setDefaults() {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytesMb <= 0 {
		cfg.MaxUploadBytesMb = 50
	}
	if cfg.Retention == 0 {
		cfg.Retention = 60 * time.Minute
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.MinIO.MaxRetries <= 0 {
		cfg.MinIO.MaxRetries = 3
	}
	if cfg.NATS.QueueName == "" {
		cfg.NATS.QueueName = "camstage"
	}
	if cfg.Converter.Timeout <= 0 {
		cfg.Converter.Timeout = 30 * time.Second
	}
	if cfg.Converter.MaxMessageMb <= 0 {
		cfg.Converter.MaxMessageMb = 64
	}
	if cfg.Converter.MaxParallel <= 0 {
		cfg.Converter.MaxParallel = 4
	}
	if cfg.Converter.Listen == "" {
		cfg.Converter.Listen = ":9090"
	}
}
