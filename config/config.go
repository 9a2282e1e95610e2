package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	ShipBox  ShipBoxConfig  `yaml:"shipbox"`
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
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ShipmentUpdatedTopicName string `yaml:"shipment_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ShipBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Melhor Envio API. OAuth client credentials come from env
	// (ME_CLIENT_ID etc), never from the yaml file.
	MEBaseURL   string `yaml:"me_base_url"`
	MEUserAgent string `yaml:"me_user_agent"`

	OrdersCacheTTLSeconds int `yaml:"orders_cache_ttl_seconds"`

	ReconcileDelaySeconds int `yaml:"reconcile_delay_seconds"`
	ReconcileConcurrency  int `yaml:"reconcile_concurrency"`

	APIRateLimitPerMinute int `yaml:"api_rate_limit_per_minute"`
}

type Secrets struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
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

// LoadSecrets reads OAuth client credentials from the environment. The mains
// call godotenv before this, so a local .env works the same as real env vars.
func LoadSecrets() (Secrets, error) {
	s := Secrets{
		ClientID:     os.Getenv("ME_CLIENT_ID"),
		ClientSecret: os.Getenv("ME_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("ME_REDIRECT_URI"),
	}
	if s.ClientID == "" || s.ClientSecret == "" {
		return Secrets{}, fmt.Errorf("ME_CLIENT_ID and ME_CLIENT_SECRET are required")
	}
	return s, nil
}
