package config

// Config represents the complete sage configuration
type Config struct {
	BaseDir     string            `yaml:"-"` // Directory containing config file, for resolving relative paths
	Server      ServerConfig      `yaml:"server"`
	Program     string            `yaml:"program"` // Path to the checked program file
	Database    DatabaseConfig    `yaml:"database"`
	Compression CompressionConfig `yaml:"compression"`
	Logging     LoggingConfig     `yaml:"logging"`
	Locale      string            `yaml:"locale"` // Locale for formatDate, e.g. "en_GB"
}

// ServerConfig holds server settings
type ServerConfig struct {
	Host  string      `yaml:"host"`
	Port  int         `yaml:"port"`
	Dev   bool        `yaml:"-"` // Set via CLI flag, not config
	HTTPS HTTPSConfig `yaml:"https"`
}

// HTTPSConfig holds TLS settings. Without a certificate the server speaks
// plain HTTP, which is the usual setup behind a terminating proxy.
type HTTPSConfig struct {
	Cert string `yaml:"cert"` // Certificate path
	Key  string `yaml:"key"`  // Private key path
}

// DatabaseConfig selects and tunes the relational store
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`         // sqlite, postgres or mysql
	DSN          string `yaml:"dsn"`            // Driver-specific data source name; for sqlite a file path
	MaxOpenConns int    `yaml:"max_open_conns"` // 0 = unlimited
	MaxIdleConns int    `yaml:"max_idle_conns"`
	Migrate      bool   `yaml:"migrate"` // Create missing program tables at startup (default: true)
}

// CompressionConfig holds HTTP response compression settings
type CompressionConfig struct {
	Enabled bool   `yaml:"enabled"`  // Enable gzip compression (default: true)
	Level   string `yaml:"level"`    // Compression level: "fastest", "default", "best", "none" (default: "default")
	MinSize int    `yaml:"min_size"` // Minimum response size to compress in bytes (default: 1024)
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "",
			Port: 8080,
		},
		Program: "app.yaml",
		Database: DatabaseConfig{
			Driver:  "sqlite",
			DSN:     "sage.db",
			Migrate: true,
		},
		Compression: CompressionConfig{
			Enabled: true,
			Level:   "default",
			MinSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Locale: "en_US",
	}
}
