package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	SendGrid   SendGridConfig   `yaml:"sendgrid"`
	PickupDesk PickupDeskConfig `yaml:"pickupdesk"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	RequestUpdatedTopicName string `yaml:"request_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	Sandbox   bool   `yaml:"sandbox"`
}

type PickupDeskConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	JWTSecret     string `yaml:"jwt_secret"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`

	UploadDir   string `yaml:"upload_dir"`
	SwaggerPath string `yaml:"swagger_path"`
	AdminEmail  string `yaml:"admin_email"`

	SnapshotTTLSeconds int `yaml:"snapshot_ttl_seconds"`

	OTPTTLSeconds  int `yaml:"otp_ttl_seconds"`
	OTPMaxAttempts int `yaml:"otp_max_attempts"`

	LoginRateLimitPerMinute int `yaml:"login_rate_limit_per_minute"`

	ResponseDeadlineHours int `yaml:"response_deadline_hours"`

	WorkerHTTPAddr           string `yaml:"worker_http_addr"`
	WorkerSweepIntervalSeconds int  `yaml:"worker_sweep_interval_seconds"`
	WorkerBatchSize          int    `yaml:"worker_batch_size"`
	WorkerConcurrency        int    `yaml:"worker_concurrency"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
