package conf

import (
	"fmt"
	"time"

	"github.com/mhilgert/docdepot/internal/pkg/classifier"
	"github.com/mhilgert/docdepot/internal/pkg/compressor"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/mhilgert/docdepot/internal/pkg/notifier"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   database.Config
	Store      StoreConfig
	Attachment AttachmentConfig
	Sweep      SweepConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Classifier classifier.Config
	Compressor compressor.Config
	Notifier   NotifierConfig
	Log        logger.Config
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StoreConfig selects where document and attachment bodies live. The
// "fs" backend uses the two directories; "minio" uses the bucket with
// per-kind key prefixes.
type StoreConfig struct {
	Backend        string `mapstructure:"backend"`
	DocumentDir    string `mapstructure:"document_dir"`
	AttachmentDir  string `mapstructure:"attachment_dir"`
	MinIOEndpoint  string `mapstructure:"minio_endpoint"`
	MinIOAccessKey string `mapstructure:"minio_access_key"`
	MinIOSecretKey string `mapstructure:"minio_secret_key"`
	MinIOUseSSL    bool   `mapstructure:"minio_use_ssl"`
	MinIOBucket    string `mapstructure:"minio_bucket"`
}

type AttachmentConfig struct {
	MaxSize      int64 `mapstructure:"max_size"`
	DeadlineDays int   `mapstructure:"deadline_days"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// AuthConfig carries the shared secret for the admin API.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// RedisConfig is optional; when Addr is empty no lock backend is
// configured and duplicate suppression relies on the unique index.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NotifierConfig struct {
	WebhookURL string              `mapstructure:"webhook_url"`
	Mail       notifier.MailConfig `mapstructure:"mail"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	// Explicit zero disables the deadline check, so the default is
	// registered with viper instead of patched over the zero value.
	viper.SetDefault("attachment.deadline_days", 14)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "fs"
	}
	if c.Store.DocumentDir == "" {
		c.Store.DocumentDir = "data/documents"
	}
	if c.Store.AttachmentDir == "" {
		c.Store.AttachmentDir = "data/attachments"
	}
	if c.Attachment.MaxSize == 0 {
		c.Attachment.MaxSize = 15 << 20
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = time.Hour
	}
}
