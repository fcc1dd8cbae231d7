package saathi

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/segfault-society/saathi/stores"
)

// Config holds the application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Store  StoreConfig  `mapstructure:"store"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// ChatConfig selects the history mode and its options.
type ChatConfig struct {
	Mode               string `mapstructure:"mode"`
	HistoryLimit       int    `mapstructure:"history_limit"`
	AutoCreateSessions bool   `mapstructure:"auto_create_sessions"`
	AllowDegraded      bool   `mapstructure:"allow_degraded"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Type       string `mapstructure:"type"`
	Connection string `mapstructure:"connection"`
}

// LLMConfig holds the generation backend configuration.
type LLMConfig struct {
	Transport    string `mapstructure:"transport"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"api_key"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig reads config.yaml from the working directory, with SAATHI_*
// environment variables overriding file values (SAATHI_LLM_API_KEY and so on).
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("saathi")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, env and defaults carry the config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("chat.mode", "server_persisted")
	v.SetDefault("chat.history_limit", 0)
	v.SetDefault("chat.auto_create_sessions", true)
	v.SetDefault("chat.allow_degraded", false)
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.connection", "chat_history.sqlite")
	v.SetDefault("llm.transport", "rest")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("log.level", "info")
}

// Validate checks the parts of the configuration that cannot be defaulted.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured, set llm.api_key or GEMINI_API_KEY")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// WithMode sets the chat history mode.
func (c *Config) WithMode(mode string) *Config {
	c.Chat.Mode = mode
	return c
}

// WithSQLiteStore selects a SQLite store at the given path.
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	c.Store = StoreConfig{Type: stores.StoreTypeSQLite, Connection: dbPath}
	return c
}

// WithPostgresStore selects a PostgreSQL store with the given DSN.
func (c *Config) WithPostgresStore(dsn string) *Config {
	c.Store = StoreConfig{Type: stores.StoreTypePostgres, Connection: dsn}
	return c
}

// WithMemoryStore selects the in-memory store.
func (c *Config) WithMemoryStore() *Config {
	c.Store = StoreConfig{Type: stores.StoreTypeMemory}
	return c
}

// WithSystemPrompt sets the persona handed to the model.
func (c *Config) WithSystemPrompt(prompt string) *Config {
	c.LLM.SystemPrompt = prompt
	return c
}
