package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"APP_ENV" env-default:"local"`
	Storage  StorageConfig  `yaml:"storage"`
	Broker   BrokerConfig   `yaml:"broker"`
	Session  SessionConfig  `yaml:"session"`
	Messages MessagesConfig `yaml:"messages"`
	Uploads  UploadsConfig  `yaml:"uploads"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite3"`
	DSN    string `yaml:"dsn" env:"STORAGE_DSN" env-required:"true"`
}

type BrokerConfig struct {
	Address       string        `yaml:"address" env:"BROKER_ADDRESS" env-default:"localhost:9090"`
	StatusAddress string        `yaml:"status_address" env:"BROKER_STATUS_ADDRESS" env-default:"localhost:9091"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env-default:"10s"`
	SendQueueSize int           `yaml:"send_queue_size" env-default:"128"`
}

type SessionConfig struct {
	UserID        int64         `yaml:"user_id" env:"SESSION_USER_ID" env-default:"1"`
	BrokerAddress string        `yaml:"broker_address" env:"BROKER_ADDRESS" env-default:"localhost:9090"`
	DialTimeout   time.Duration `yaml:"dial_timeout" env-default:"5s"`
	EventQueue    int           `yaml:"event_queue" env-default:"256"`
}

type MessagesConfig struct {
	HistoryPageSize int `yaml:"history_page_size" env-default:"50"`
	MaxAttachments  int `yaml:"max_attachments" env-default:"10"`
}

type UploadsConfig struct {
	Bucket        string `yaml:"bucket" env:"S3_BUCKET"`
	Region        string `yaml:"region" env:"S3_REGION"`
	Endpoint      string `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKey     string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	PresignTTLSec int    `yaml:"presign_ttl_sec" env-default:"900"`
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config %s", err)
	}

	return &cfg
}
