package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"afreeca-dl/pkg/models"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// for example AMDL_HTTP_TIMEOUT for http.timeout
const EnvPrefix = "AMDL"

// secretKeys are masked by Settings
var secretKeys = []string{
	"afreecatv.password",
	"afreecatv.video_password",
	"afreecatv.cookie",
	"auth.jwt_secret",
	"auth.admin_password",
}

// Manager manages application configuration
type Manager struct {
	config *models.Config
	viper  *viper.Viper
	logger zerolog.Logger
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: &models.Config{},
		viper:  viper.New(),
		logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
}

// Load loads configuration from file and environment. A missing config
// file is not an error; defaults apply.
func (m *Manager) Load(configPath string) (*models.Config, error) {
	m.setDefaults()

	m.viper.SetConfigName("config")
	m.viper.SetConfigType("yaml")

	if configPath != "" {
		m.viper.AddConfigPath(configPath)
	} else {
		m.viper.AddConfigPath(".")
		m.viper.AddConfigPath("./config")
		m.viper.AddConfigPath("$HOME/.afreeca-dl")
		m.viper.AddConfigPath("/etc/afreeca-dl")
	}

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.configureLogger(); err != nil {
		return nil, fmt.Errorf("error configuring logger: %w", err)
	}

	m.logger.Debug().Str("file", m.viper.ConfigFileUsed()).Msg("Configuration loaded")
	return m.config, nil
}

// ConfigFileUsed returns the config file that was read, if any
func (m *Manager) ConfigFileUsed() string {
	return m.viper.ConfigFileUsed()
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *models.Config {
	return m.config
}

// UpdateConfig updates specific configuration values
func (m *Manager) UpdateConfig(updates map[string]interface{}) error {
	for key, value := range updates {
		m.viper.Set(key, value)
	}

	return m.viper.Unmarshal(m.config)
}

// Settings returns all settings with secrets masked
func (m *Manager) Settings() map[string]interface{} {
	settings := m.viper.AllSettings()

	for _, key := range secretKeys {
		section, field, _ := strings.Cut(key, ".")
		values, ok := settings[section].(map[string]interface{})
		if !ok {
			continue
		}
		if s, ok := values[field].(string); ok && s != "" {
			values[field] = "********"
		}
	}

	return settings
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	m.viper.SetDefault("server.host", "0.0.0.0")
	m.viper.SetDefault("server.port", 8080)
	m.viper.SetDefault("server.read_timeout", 30)
	m.viper.SetDefault("server.write_timeout", 30)

	// Outbound HTTP defaults
	m.viper.SetDefault("http.timeout", 30)
	m.viper.SetDefault("http.max_retries", 3)
	m.viper.SetDefault("http.proxy", "")
	m.viper.SetDefault("http.user_agent", "")
	m.viper.SetDefault("http.rate_limit", 5.0)
	m.viper.SetDefault("http.burst", 5)
	m.viper.SetDefault("http.tls_insecure", false)

	// Log defaults
	m.viper.SetDefault("log.level", "info")
	m.viper.SetDefault("log.format", "text")
	m.viper.SetDefault("log.output", "stderr")

	// Platform defaults
	m.viper.SetDefault("afreecatv.enabled", true)
	m.viper.SetDefault("afreecatv.username", "")
	m.viper.SetDefault("afreecatv.password", "")
	m.viper.SetDefault("afreecatv.video_password", "")
	m.viper.SetDefault("afreecatv.allow_no_formats", false)
	m.viper.SetDefault("afreecatv.cookie", "")

	// Auth defaults
	m.viper.SetDefault("auth.enabled", false)
	m.viper.SetDefault("auth.jwt_secret", "")
	m.viper.SetDefault("auth.token_expiry", 24)
	m.viper.SetDefault("auth.admin_user", "admin")
	m.viper.SetDefault("auth.admin_password", "")

	// Rate limit defaults
	m.viper.SetDefault("rate_limit.enabled", true)
	m.viper.SetDefault("rate_limit.requests_per_second", 10)
	m.viper.SetDefault("rate_limit.burst", 30)
	m.viper.SetDefault("rate_limit.max_concurrent", 100)
	m.viper.SetDefault("rate_limit.whitelisted_ips", []string{"127.0.0.1", "::1"})

	// Export defaults
	m.viper.SetDefault("export.format", "json")
	m.viper.SetDefault("export.page_limit", 0)
}

const defaultConfig = `# afreeca-dl configuration

server:
  host: 0.0.0.0
  port: 8080
  read_timeout: 30
  write_timeout: 30

http:
  timeout: 30
  max_retries: 3
  proxy: ""          # http://host:port or socks5://host:port
  user_agent: ""
  rate_limit: 5      # requests per second to the platform, 0 disables
  burst: 5
  tls_insecure: false

log:
  level: info
  format: text       # text or json
  output: stderr     # stderr, stdout or a file path

afreecatv:
  enabled: true
  username: ""       # falls back to the keyring, see "afreeca-dl login"
  password: ""
  video_password: "" # for password protected live streams
  allow_no_formats: false
  cookie: ""

auth:
  enabled: false
  jwt_secret: ""
  token_expiry: 24   # hours
  admin_user: admin
  admin_password: ""

rate_limit:
  enabled: true
  requests_per_second: 10
  burst: 30
  max_concurrent: 100
  whitelisted_ips:
    - "127.0.0.1"
    - "::1"

export:
  format: json       # csv, xlsx or json
  page_limit: 0      # catalog pages to export, 0 reads all
`

// WriteDefault writes a default config.yaml into dir. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(dir string, force bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil && !force {
		return "", fmt.Errorf("config file already exists: %s", configFile)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfig), 0600); err != nil {
		return "", fmt.Errorf("error writing default config: %w", err)
	}

	return configFile, nil
}

// configureLogger configures the logger based on settings
func (m *Manager) configureLogger() error {
	level, err := zerolog.ParseLevel(m.config.Log.Level)
	if err != nil || m.config.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer
	switch m.config.Log.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		file, err := os.OpenFile(m.config.Log.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		out = file
	}

	if m.config.Log.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	m.logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() zerolog.Logger {
	return m.logger
}
