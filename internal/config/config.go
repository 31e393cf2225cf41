package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the entire application configuration
type Config struct {
	Env           string              `json:"env"`
	Port          int                 `json:"port"`
	AppName       string              `json:"app_name"`
	MongoDB       MongoDBConfig       `json:"mongodb"`
	Redis         RedisConfig         `json:"redis"`
	RabbitMQ      RabbitMQConfig      `json:"rabbitmq"`
	S3            S3Config            `json:"s3"`
	Batch         BatchConfig         `json:"batch"`
	Integrations  IntegrationsConfig  `json:"integrations"`
	Notifications NotificationsConfig `json:"notifications"`
	CORS          CORSConfig          `json:"cors"`
	Logging       LoggingConfig       `json:"logging"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// RabbitMQConfig contains broker connection details and the batch topology
type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	QueueName     string `json:"queue_name"`
	RetryQueue    string `json:"retry_queue"`
	PrefetchCount int    `json:"prefetch_count"`
}

// S3Config contains credentials and bucket for durable file storage
type S3Config struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
}

// BatchConfig bounds batch intake and drives the retry policy
type BatchConfig struct {
	MaxItems         int `json:"max_items"`
	MaxFileSizeBytes int `json:"max_file_size_bytes"`
	ChunkSize        int `json:"chunk_size"`
	MaxAttempts      int `json:"max_attempts"`
	BackoffBaseMs    int `json:"backoff_base_ms"`
	WorkerCount      int `json:"worker_count"`
	StatusCacheTTLMs int `json:"status_cache_ttl_ms"`
}

// IntegrationsConfig points at the external payable-creation service
type IntegrationsConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// NotificationsConfig points at the notification service
type NotificationsConfig struct {
	BaseURL         string `json:"base_url"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	ReportEmail     string `json:"report_email"`
	OperationsEmail string `json:"operations_email"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Batch.MaxItems == 0 {
		c.Batch.MaxItems = 10000
	}
	if c.Batch.MaxFileSizeBytes == 0 {
		c.Batch.MaxFileSizeBytes = 10485760
	}
	if c.Batch.ChunkSize == 0 {
		c.Batch.ChunkSize = 500
	}
	if c.Batch.MaxAttempts == 0 {
		c.Batch.MaxAttempts = 4
	}
	if c.Batch.BackoffBaseMs == 0 {
		c.Batch.BackoffBaseMs = 2000
	}
	if c.Batch.WorkerCount == 0 {
		c.Batch.WorkerCount = 4
	}
	if c.Batch.StatusCacheTTLMs == 0 {
		c.Batch.StatusCacheTTLMs = 2000
	}
	if c.RabbitMQ.ExchangeName == "" {
		c.RabbitMQ.ExchangeName = "payables"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "payable.process"
	}
	if c.RabbitMQ.RetryQueue == "" {
		c.RabbitMQ.RetryQueue = "payable.retry"
	}
	if c.Integrations.TimeoutSeconds == 0 {
		c.Integrations.TimeoutSeconds = 30
	}
	if c.Notifications.TimeoutSeconds == 0 {
		c.Notifications.TimeoutSeconds = 10
	}
}
