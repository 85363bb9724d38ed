package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Ledger        LedgerConfig       `mapstructure:"ledger"`
	Escrow        EscrowConfig       `mapstructure:"escrow"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Confirmation  ConfirmationConfig `mapstructure:"confirmation"`
	Wallet        WalletConfig       `mapstructure:"wallet"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LedgerConfig contains ledger node configuration
type LedgerConfig struct {
	GenesisID      string        `mapstructure:"genesis_id"`
	AutoConfirm    bool          `mapstructure:"auto_confirm"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// EscrowConfig contains escrow policy configuration
type EscrowConfig struct {
	VerifierTimelock time.Duration `mapstructure:"verifier_timelock"`
	AnyPartyRelease  bool          `mapstructure:"any_party_release"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ConfirmationConfig bounds submission retries and confirmation polling
type ConfirmationConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxPolls      int           `mapstructure:"max_polls"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

// WalletConfig contains signing session configuration
type WalletConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	KeyFile    string        `mapstructure:"key_file"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Viper keeps global state; reset so repeated loads do not inherit a
	// previously set config file.
	viper.Reset()
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("FAIRLENS")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if webhookURL := os.Getenv("FAIRLENS_WEBHOOK_URL"); webhookURL != "" {
		config.Notifications.WebhookURL = webhookURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "fairlens-escrow-engine")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Ledger defaults
	viper.SetDefault("ledger.genesis_id", "fairlens-local")
	viper.SetDefault("ledger.auto_confirm", true)
	viper.SetDefault("ledger.request_timeout", "30s")
	viper.SetDefault("ledger.health_interval", "30s")

	// Escrow policy defaults
	viper.SetDefault("escrow.verifier_timelock", "24h")
	viper.SetDefault("escrow.any_party_release", false)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/escrow.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Confirmation defaults
	viper.SetDefault("confirmation.poll_interval", "2s")
	viper.SetDefault("confirmation.max_polls", 10)
	viper.SetDefault("confirmation.retry_attempts", 3)
	viper.SetDefault("confirmation.retry_delay", "500ms")
	viper.SetDefault("confirmation.max_retry_delay", "8s")

	// Wallet defaults
	viper.SetDefault("wallet.session_ttl", "1h")

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.queue_size", 256)
	viper.SetDefault("notifications.workers", 2)
	viper.SetDefault("notifications.retry_attempts", 3)
	viper.SetDefault("notifications.retry_delay", "1s")
	viper.SetDefault("notifications.max_retry_delay", "30s")
	viper.SetDefault("notifications.webhook_timeout", "30s")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Ledger.GenesisID == "" {
		return fmt.Errorf("ledger genesis id is required")
	}
	if c.Storage.Type != "sqlite" && c.Storage.Type != "postgres" {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Confirmation.PollInterval <= 0 {
		return fmt.Errorf("confirmation poll interval must be positive")
	}
	if c.Confirmation.MaxPolls <= 0 {
		return fmt.Errorf("confirmation max polls must be positive")
	}
	if c.Escrow.VerifierTimelock < 0 {
		return fmt.Errorf("verifier timelock must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	return nil
}
