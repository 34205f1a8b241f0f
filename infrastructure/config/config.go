package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `yaml:"log_level" validate:"required,oneof=debug info warn error"`

	// Durable log storage
	StorageBackend string `yaml:"storage_backend" validate:"required,oneof=memory sqlite dynamodb"`
	SQLitePath     string `yaml:"sqlite_path"`

	// AWS configuration (dynamodb backend and EventBridge publishing)
	AWSRegion          string `yaml:"aws_region"`
	DynamoDBTable      string `yaml:"dynamodb_table"`
	EventTypeIndexName string `yaml:"event_type_index_name"`
	ActivityIndexName  string `yaml:"activity_index_name"`
	EventBusName       string `yaml:"event_bus_name"`
	EnablePublisher    bool   `yaml:"enable_publisher"`

	// Query behavior
	DefaultQueryLimit int `yaml:"default_query_limit" validate:"gt=0,lte=1000"`

	// Observability
	EnableMetrics    bool   `yaml:"enable_metrics"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		SQLitePath:     getEnv("SQLITE_PATH", "storyweave.db"),

		AWSRegion:          getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:      getEnv("TABLE_NAME", "storyweave-events"),
		EventTypeIndexName: getEnv("EVENT_TYPE_INDEX_NAME", "EventTypeIndex"),
		ActivityIndexName:  getEnv("ACTIVITY_INDEX_NAME", "ActivityIndex"),
		EventBusName:       getEnv("EVENT_BUS_NAME", "storyweave-events"),
		EnablePublisher:    getEnvBool("ENABLE_PUBLISHER", false),

		DefaultQueryLimit: getEnvInt("DEFAULT_QUERY_LIMIT", 50),

		EnableMetrics:    getEnvBool("ENABLE_METRICS", false),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "storyweave"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyFile overlays values from a YAML file onto the config. Fields absent
// from the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration with the struct's validation tags plus
// backend-specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.StorageBackend == "dynamodb" && c.DynamoDBTable == "" {
		return fmt.Errorf("TABLE_NAME is required for the dynamodb backend")
	}
	if c.StorageBackend == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
	}
	if c.EnablePublisher && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required when publishing is enabled")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
