package domain

import (
	"fmt"
	"time"
)

// Site represents one upstream OpenAI-compatible chat completion endpoint
type Site struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   *int    `json:"max_tokens,omitempty"`
	Enabled     bool    `json:"enabled"`
	Priority    int     `json:"priority"` // lower number = higher priority
}

// Validate checks the fields a site needs before it can be used
func (s *Site) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: site name is required", ErrInvalidRequest)
	}
	if s.BaseURL == "" {
		return fmt.Errorf("%w: site base_url is required", ErrInvalidRequest)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidRequest)
	}
	if s.MaxTokens != nil && *s.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidRequest)
	}
	return nil
}

// HealthStatus is the derived reliability classification of a site
type HealthStatus string

// Health statuses
const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// SiteHealth is the rolling health record of a site
type SiteHealth struct {
	SiteID       string       `json:"site_id"`
	FailureCount int          `json:"failure_count"`
	LastFailure  *time.Time   `json:"last_failure,omitempty"`
	LastSuccess  *time.Time   `json:"last_success,omitempty"`
	Status       HealthStatus `json:"status"`
}

// Strategy selects how the next site is drawn from the eligible pool
type Strategy string

// Load balancer strategies
const (
	StrategyRoundRobin Strategy = "round-robin"
	StrategyPriority   Strategy = "priority"
	StrategyRandom     Strategy = "random"
)

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyPriority, StrategyRandom:
		return true
	}
	return false
}

// LoadBalancerConfig holds process-wide site selection and retry settings
type LoadBalancerConfig struct {
	Strategy     Strategy `json:"strategy" mapstructure:"strategy"`
	MaxFailures  int      `json:"max_failures" mapstructure:"max_failures"`
	RecoveryTime int64    `json:"recovery_time" mapstructure:"recovery_time"` // milliseconds
	RetryCount   int      `json:"retry_count" mapstructure:"retry_count"`
}

// RecoveryDuration returns RecoveryTime as a time.Duration
func (c LoadBalancerConfig) RecoveryDuration() time.Duration {
	return time.Duration(c.RecoveryTime) * time.Millisecond
}

// Validate checks the config for out-of-range values
func (c LoadBalancerConfig) Validate() error {
	if !c.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidRequest, c.Strategy)
	}
	if c.MaxFailures < 1 {
		return fmt.Errorf("%w: max_failures must be at least 1", ErrInvalidRequest)
	}
	if c.RecoveryTime < 0 {
		return fmt.Errorf("%w: recovery_time must not be negative", ErrInvalidRequest)
	}
	if c.RetryCount < 1 {
		return fmt.Errorf("%w: retry_count must be at least 1", ErrInvalidRequest)
	}
	return nil
}

// DefaultLoadBalancerConfig returns the default load balancer configuration
func DefaultLoadBalancerConfig() LoadBalancerConfig {
	return LoadBalancerConfig{
		Strategy:     StrategyRoundRobin,
		MaxFailures:  3,
		RecoveryTime: 60000,
		RetryCount:   3,
	}
}

// CreateSiteRequest is the request to create a site
type CreateSiteRequest struct {
	Name        string  `json:"name" binding:"required"`
	BaseURL     string  `json:"base_url" binding:"required"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model" binding:"required"`
	Temperature float64 `json:"temperature"`
	MaxTokens   *int    `json:"max_tokens,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// UpdateSiteRequest is the request to update a site
type UpdateSiteRequest struct {
	Name        string   `json:"name,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// Apply copies the set fields of the request onto site
func (r *UpdateSiteRequest) Apply(site *Site) {
	if r.Name != "" {
		site.Name = r.Name
	}
	if r.BaseURL != "" {
		site.BaseURL = r.BaseURL
	}
	if r.APIKey != "" {
		site.APIKey = r.APIKey
	}
	if r.Model != "" {
		site.Model = r.Model
	}
	if r.Temperature != nil {
		site.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		site.MaxTokens = r.MaxTokens
	}
	if r.Enabled != nil {
		site.Enabled = *r.Enabled
	}
}

// ReorderSitesRequest is the request to change the display order of sites
type ReorderSitesRequest struct {
	SiteIDs []string `json:"site_ids" binding:"required"`
}

// LegacySiteName names the site created from a single-site legacy config
const LegacySiteName = "Default site"

// LegacyLLMConfig is the single-endpoint configuration used before sites
// existed
type LegacyLLMConfig struct {
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   *int    `json:"max_tokens,omitempty"`
}

// Usable reports whether the legacy config carries a credential worth migrating
func (c LegacyLLMConfig) Usable() bool {
	return c.APIKey != ""
}

// ToSite builds the enabled, top-priority site that replaces the legacy config
func (c LegacyLLMConfig) ToSite(id string) Site {
	return Site{
		ID:          id,
		Name:        LegacySiteName,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Enabled:     true,
		Priority:    1,
	}
}
