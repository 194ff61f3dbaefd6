package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix shared by every environment override.
const envPrefix = "LIGHTHOUSE_"

// Config is the root configuration structure for the Lighthouse hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub      HubConfig      `yaml:"hub"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	Tunnel   TunnelConfig   `yaml:"tunnel"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// HubConfig identifies this hub instance.
type HubConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// TunnelConfig contains device tunnel settings.
type TunnelConfig struct {
	// Path is the HTTP path devices connect to.
	Path string `yaml:"path"`

	// RequestTimeoutMs is the default time a command waits for its reply.
	RequestTimeoutMs int `yaml:"request_timeout_ms"`

	// MaxPending bounds queued plus in-flight commands per device.
	// 1 allows a single outstanding command at a time.
	MaxPending int `yaml:"max_pending"`

	// MaxMessageSize is the largest frame accepted from a device, in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// PingInterval and PongTimeout are in seconds.
	PingInterval int `yaml:"ping_interval"`
	PongTimeout  int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. TTLs are in minutes.
type JWTConfig struct {
	AccessSecret    string `yaml:"access_secret"`
	RefreshSecret   string `yaml:"refresh_secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: LIGHTHOUSE_SECTION_KEY
// For example: LIGHTHOUSE_DATABASE_PATH, LIGHTHOUSE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates unset environment variables from a dotenv file.
// A missing file is not an error; real environment variables always win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			ID:   "lighthouse-001",
			Name: "Lighthouse",
		},
		Database: DatabaseConfig{
			Path:        "./data/lighthouse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lighthouse-hub",
			},
			QoS:         1,
			TopicPrefix: "lighthouse",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 6001,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 70, // above the longest command timeout the API accepts
				Idle:  60,
			},
		},
		Tunnel: TunnelConfig{
			Path:             "/lighthouse/ws",
			RequestTimeoutMs: 5000,
			MaxPending:       32,
			MaxMessageSize:   64 * 1024,
			PingInterval:     30,
			PongTimeout:      10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  10,
				RefreshTokenTTL: 7 * 24 * 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Database
	envString("DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	envBool("MQTT_ENABLED", &cfg.MQTT.Enabled)
	envString("MQTT_HOST", &cfg.MQTT.Broker.Host)
	envInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	envString("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	envString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	envString("API_HOST", &cfg.API.Host)
	envInt("API_PORT", &cfg.API.Port)

	// Tunnel
	envInt("TUNNEL_REQUEST_TIMEOUT_MS", &cfg.Tunnel.RequestTimeoutMs)
	envInt("TUNNEL_MAX_PENDING", &cfg.Tunnel.MaxPending)

	// InfluxDB
	envBool("INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	envString("INFLUXDB_URL", &cfg.InfluxDB.URL)
	envString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	envString("LOG_LEVEL", &cfg.Logging.Level)

	// Security - always override secrets in production
	envString("JWT_ACCESS_SECRET", &cfg.Security.JWT.AccessSecret)
	envString("JWT_REFRESH_SECRET", &cfg.Security.JWT.RefreshSecret)
}

func envString(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

// envInt ignores values that do not parse; Validate reports the effective value.
func envInt(key string, dst *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.ID == "" {
		errs = append(errs, "hub.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if !strings.HasPrefix(c.Tunnel.Path, "/") {
		errs = append(errs, "tunnel.path must start with /")
	}
	if c.Tunnel.RequestTimeoutMs <= 0 {
		errs = append(errs, "tunnel.request_timeout_ms must be positive")
	}
	if c.Tunnel.MaxPending < 1 {
		errs = append(errs, "tunnel.max_pending must be at least 1")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Forged tokens would grant command access to physical devices.
	const minJWTSecretLength = 32
	for name, secret := range map[string]string{
		"access_secret":  c.Security.JWT.AccessSecret,
		"refresh_secret": c.Security.JWT.RefreshSecret,
	} {
		switch {
		case secret == "":
			errs = append(errs, fmt.Sprintf("security.jwt.%s is required (set %sJWT_%s)",
				name, envPrefix, strings.ToUpper(name)))
		case len(secret) < minJWTSecretLength:
			errs = append(errs, fmt.Sprintf("security.jwt.%s must be at least %d characters", name, minJWTSecretLength))
		}
	}
	if c.Security.JWT.AccessSecret != "" && c.Security.JWT.AccessSecret == c.Security.JWT.RefreshSecret {
		errs = append(errs, "security.jwt.access_secret and refresh_secret must differ")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetRequestTimeout returns the default device command timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Tunnel.RequestTimeoutMs) * time.Millisecond
}

// GetAccessTokenTTL returns the access token lifetime.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// GetRefreshTokenTTL returns the refresh token lifetime.
func (c *Config) GetRefreshTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.RefreshTokenTTL) * time.Minute
}
