// Package config handles application configuration loading from a YAML file and environment variables.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "civicapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at the YAML config file
const ConfigFileEnv = "CIVIC_CONFIG_FILE"

// DefaultConfigFile is searched for when ConfigFileEnv is unset
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Redis backs the dashboard aggregate cache; empty URL selects the in-memory cache
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Object storage for report images
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Background task queue for notifications
	Queue QueueConfig `json:"queue" yaml:"queue"`

	// Bearer token verification
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Report submission limits
	Reports ReportsConfig `json:"reports" yaml:"reports"`

	// Admin dashboard aggregates
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Email Configuration
	Email EmailConfig `json:"email" yaml:"email"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port           string   `json:"port" yaml:"port"`
	WorkerPort     string   `json:"worker_port" yaml:"worker_port"`
	Debug          bool     `json:"debug" yaml:"debug"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	AppBaseURL     string   `json:"app_base_url" yaml:"app_base_url"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins"`
	MaxRequestBody int64    `json:"max_request_body" yaml:"max_request_body"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`       // Maximum number of open connections to the database
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`       // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"` // Maximum amount of time a connection may be reused
	MigrationsPath  string        `json:"migrations_path" yaml:"migrations_path"`
}

// RedisConfig represents the redis connection used by the aggregate cache
type RedisConfig struct {
	URL       string `json:"url" yaml:"url"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// StorageConfig represents S3-compatible object storage configuration
type StorageConfig struct {
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	AccessKey     string `json:"access_key" yaml:"access_key"`
	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	Bucket        string `json:"bucket" yaml:"bucket"`
	UseSSL        bool   `json:"use_ssl" yaml:"use_ssl"`
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

// QueueConfig selects and sizes the notification task queue.
// Backend is "memory" (in-process workers) or "rabbitmq".
type QueueConfig struct {
	Backend   string `json:"backend" yaml:"backend"`
	URL       string `json:"url" yaml:"url"`
	QueueName string `json:"queue_name" yaml:"queue_name"`
	Workers   int    `json:"workers" yaml:"workers"`
	Buffer    int    `json:"buffer" yaml:"buffer"`
}

// AuthConfig represents bearer token verification settings
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `json:"issuer" yaml:"issuer"`
	AdminRole string `json:"admin_role" yaml:"admin_role"`
}

// ReportsConfig represents limits applied to report submissions
type ReportsConfig struct {
	MaxImages        int   `json:"max_images" yaml:"max_images"`
	MaxImageBytes    int64 `json:"max_image_bytes" yaml:"max_image_bytes"`
	MaxCommentLength int   `json:"max_comment_length" yaml:"max_comment_length"`
	DefaultPageSize  int   `json:"default_page_size" yaml:"default_page_size"`
	MaxPageSize      int   `json:"max_page_size" yaml:"max_page_size"`
}

// DashboardConfig controls caching of the admin dashboard aggregates.
// An omitted cache_ttl means DefaultDashboardCacheTTL; an explicit zero disables caching.
type DashboardConfig struct {
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CacheKey string        `json:"cache_key" yaml:"cache_key"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "civic-backend" or "civic-worker"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// EmailConfig represents email/SMTP configuration
type EmailConfig struct {
	SMTP    SMTPConfig `json:"smtp" yaml:"smtp"`
	Enabled bool       `json:"enabled" yaml:"enabled"`
}

// SMTPConfig represents SMTP server configuration
type SMTPConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.ApplyDefaults()

	return config, nil
}

// ApplyDefaults fills unset fields with their default values
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.WorkerPort == "" {
		c.Server.WorkerPort = DefaultWorkerPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.MaxRequestBody <= 0 {
		c.Server.MaxRequestBody = DefaultMaxRequestBody
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = DatabaseConnMaxLifetime
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultCacheKeyPrefix
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = QueueBackendMemory
	}
	if c.Queue.QueueName == "" {
		c.Queue.QueueName = DefaultQueueName
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = DefaultQueueWorkers
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = DefaultQueueBuffer
	}
	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = DefaultAdminRole
	}
	if c.Reports.MaxImages <= 0 {
		c.Reports.MaxImages = DefaultMaxImages
	}
	if c.Reports.MaxImageBytes <= 0 {
		c.Reports.MaxImageBytes = DefaultMaxImageBytes
	}
	if c.Reports.MaxCommentLength <= 0 {
		c.Reports.MaxCommentLength = DefaultMaxCommentLength
	}
	if c.Reports.DefaultPageSize <= 0 {
		c.Reports.DefaultPageSize = DefaultPageSize
	}
	if c.Reports.MaxPageSize <= 0 {
		c.Reports.MaxPageSize = MaxPageSize
	}
	// Zero is a valid TTL (caching disabled); only negative values are reset.
	if c.Dashboard.CacheTTL < 0 {
		c.Dashboard.CacheTTL = DefaultDashboardCacheTTL
	}
	if c.Dashboard.CacheKey == "" {
		c.Dashboard.CacheKey = DefaultDashboardCacheKey
	}
	if c.OpenTelemetry.SamplingRate <= 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnv(c)
}

// overrideStructFromEnv recursively overrides struct fields with environment variables
func overrideStructFromEnv(v interface{}) {
	overrideStructFromEnvWithPrefix(v, "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		// Durations are int64 underneath but are written as "5m" in the environment
		if field.Type() == durationType {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				overrideStructFromEnvWithPrefix(field.Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file named by CIVIC_CONFIG_FILE, or the
// nearest config.yaml found walking up from the working directory
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv(ConfigFileEnv); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	return loadConfigFromFile(findConfigFile(DefaultConfigFile))
}

// findConfigFile returns the first name found in the working directory or its parents.
// When none exists the bare name is returned so the read error names it.
func findConfigFile(name string) string {
	dir, err := os.Getwd()
	if err != nil {
		return name
	}
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return name
		}
		dir = parent
	}
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Keys absent from the file keep these values; an explicit zero still wins
	config := Config{Dashboard: DashboardConfig{CacheTTL: DefaultDashboardCacheTTL}}
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
