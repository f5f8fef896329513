package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// ROUNDTABLE_SERVER_PORT
const EnvPrefix = "ROUNDTABLE"

// Config holds all configuration for Roundtable
type Config struct {
	Server       ServerConfig              `mapstructure:"server"`
	Admin        AdminConfig               `mapstructure:"admin"`
	Database     DatabaseConfig            `mapstructure:"database"`
	HTTP         HTTPConfig                `mapstructure:"http"`
	LoadBalancer domain.LoadBalancerConfig `mapstructure:"loadbalancer"`
	Roundtable   RoundtableConfig          `mapstructure:"roundtable"`
	LLM          LLMConfig                 `mapstructure:"llm"`
	Sites        []SiteConfig              `mapstructure:"sites"`
	Log          LogConfig                 `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig holds the upstream HTTP client configuration.
// A zero Timeout leaves streams bounded only by cancellation.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RoundtableConfig holds discussion defaults
type RoundtableConfig struct {
	MaxRounds int `mapstructure:"max_rounds"`
}

// LLMConfig is the legacy single-site configuration. It is only read to
// seed the site list of a store that has none, and only when an api_key is
// set.
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// SiteConfig bootstraps one site on first start
type SiteConfig struct {
	ID          string  `mapstructure:"id"`
	Name        string  `mapstructure:"name"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Enabled     *bool   `mapstructure:"enabled"`
	Priority    int     `mapstructure:"priority"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()
	return LoadWith(v, configPath)
}

// LoadWith loads configuration into v, which may already carry bound flags
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")

	v.SetDefault("database.path", "./data/roundtable.db")

	v.SetDefault("http.timeout", 0)

	lb := domain.DefaultLoadBalancerConfig()
	v.SetDefault("loadbalancer.strategy", string(lb.Strategy))
	v.SetDefault("loadbalancer.max_failures", lb.MaxFailures)
	v.SetDefault("loadbalancer.recovery_time", lb.RecoveryTime)
	v.SetDefault("loadbalancer.retry_count", lb.RetryCount)

	v.SetDefault("roundtable.max_rounds", domain.DefaultMaxRounds)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 0)

	v.SetDefault("log.level", "info")
}

// Validate rejects out-of-range values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	if err := c.LoadBalancer.Validate(); err != nil {
		return fmt.Errorf("invalid loadbalancer config: %w", err)
	}
	if c.Roundtable.MaxRounds < 0 {
		return fmt.Errorf("roundtable.max_rounds must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	for i, s := range c.Sites {
		if s.Temperature < 0 || s.Temperature > 2 {
			return fmt.Errorf("sites[%d].temperature must be between 0 and 2", i)
		}
		if s.MaxTokens < 0 {
			return fmt.Errorf("sites[%d].max_tokens must not be negative", i)
		}
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SeedSites returns the sites configured under sites, numbered in file order
func (c *Config) SeedSites() []domain.Site {
	sites := make([]domain.Site, 0, len(c.Sites))
	for i, s := range c.Sites {
		site := domain.Site{
			ID:          s.ID,
			Name:        s.Name,
			BaseURL:     s.BaseURL,
			APIKey:      s.APIKey,
			Model:       s.Model,
			Temperature: s.Temperature,
			Enabled:     s.Enabled == nil || *s.Enabled,
			Priority:    s.Priority,
		}
		if site.Priority <= 0 {
			site.Priority = i + 1
		}
		if s.MaxTokens > 0 {
			maxTokens := s.MaxTokens
			site.MaxTokens = &maxTokens
		}
		sites = append(sites, site)
	}
	return sites
}

// Legacy returns the legacy llm section in its stored form
func (c *Config) Legacy() domain.LegacyLLMConfig {
	legacy := domain.LegacyLLMConfig{
		BaseURL:     c.LLM.BaseURL,
		APIKey:      c.LLM.APIKey,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
	}
	if c.LLM.MaxTokens > 0 {
		maxTokens := c.LLM.MaxTokens
		legacy.MaxTokens = &maxTokens
	}
	return legacy
}
