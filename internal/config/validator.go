package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a full configuration for internal consistency
func (v *Validator) Validate(cfg *Config) error {
	for _, profile := range cfg.Engine.Profiles {
		if err := v.ValidateProfile(profile); err != nil {
			return err
		}
	}

	if cfg.Engine.Default != "" && !v.hasProfile(cfg, cfg.Engine.Default) {
		return fmt.Errorf("default engine profile %q is not defined", cfg.Engine.Default)
	}

	if err := v.ValidateAgent(cfg.Agent); err != nil {
		return err
	}

	if cfg.Cache.ChatTTL < 0 || cfg.Cache.DashboardTTL < 0 || cfg.Cache.DiagnosticsTTL < 0 {
		return fmt.Errorf("cache TTLs cannot be negative")
	}

	if cfg.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("session idle TTL must be positive")
	}

	if cfg.Tools.MetricsServiceURL != "" {
		if err := v.ValidateURL(cfg.Tools.MetricsServiceURL); err != nil {
			return fmt.Errorf("metrics service URL: %w", err)
		}
	}
	if cfg.Tools.DashboardServiceURL != "" {
		if err := v.ValidateURL(cfg.Tools.DashboardServiceURL); err != nil {
			return fmt.Errorf("dashboard service URL: %w", err)
		}
	}

	return nil
}

// ValidateProfile validates an engine profile
func (v *Validator) ValidateProfile(profile EngineProfile) error {
	if profile.ID == "" {
		return fmt.Errorf("engine profile id cannot be empty")
	}

	switch profile.Provider {
	case "anthropic":
		if !strings.HasPrefix(profile.APIKey, "sk-ant-") {
			return fmt.Errorf("profile %s: invalid Anthropic API key format (should start with sk-ant-)", profile.ID)
		}
	case "openai":
		if !strings.HasPrefix(profile.APIKey, "sk-") {
			return fmt.Errorf("profile %s: invalid OpenAI API key format (should start with sk-)", profile.ID)
		}
	default:
		return fmt.Errorf("profile %s: unsupported provider %q", profile.ID, profile.Provider)
	}

	return nil
}

// ValidateAgent validates orchestrator tunables
func (v *Validator) ValidateAgent(agent AgentConfig) error {
	if agent.Model == "" {
		return fmt.Errorf("agent model cannot be empty")
	}
	if agent.Temperature < 0 || agent.Temperature > 1 {
		return fmt.Errorf("agent temperature must be between 0 and 1")
	}
	if agent.MaxTokens < 0 {
		return fmt.Errorf("agent max tokens cannot be negative")
	}
	if agent.MaxRounds <= 0 {
		return fmt.Errorf("agent max rounds must be positive")
	}
	if agent.ToolParallelism <= 0 {
		return fmt.Errorf("agent tool parallelism must be positive")
	}
	return nil
}

// ValidateURL validates an http(s) collaborator endpoint
func (v *Validator) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL host cannot be empty")
	}
	return nil
}

func (v *Validator) hasProfile(cfg *Config, id string) bool {
	for _, p := range cfg.Engine.Profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}
