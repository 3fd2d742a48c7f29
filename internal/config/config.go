package config

// Config represents the main opschat configuration
type Config struct {
	// Engine holds reasoning engine profiles
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Agent holds orchestrator tunables
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Cache holds response cache settings
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Sessions holds session store settings
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Tools holds tool collaborator endpoints
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Fallbacks maps agent type to its degraded response text
	Fallbacks map[string]string `json:"fallbacks" mapstructure:"fallbacks"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Admin holds the metrics/admin listener settings
	Admin AdminConfig `json:"admin" mapstructure:"admin"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// EngineConfig holds reasoning engine configuration
type EngineConfig struct {
	Profiles []EngineProfile `json:"profiles" mapstructure:"profiles"`
	Default  string          `json:"default" mapstructure:"default"`
}

// EngineProfile represents credentials for one reasoning engine provider
type EngineProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// AgentConfig holds orchestrator tunables
type AgentConfig struct {
	Model           string  `json:"model" mapstructure:"model"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens"`
	SystemPrompt    string  `json:"system_prompt" mapstructure:"system_prompt"`
	MaxRounds       int     `json:"max_rounds" mapstructure:"max_rounds"`
	TurnTimeout     int     `json:"turn_timeout" mapstructure:"turn_timeout"`         // seconds
	ToolTimeout     int     `json:"tool_timeout" mapstructure:"tool_timeout"`         // seconds
	ToolParallelism int     `json:"tool_parallelism" mapstructure:"tool_parallelism"` // concurrent tool calls per round
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	Enabled         bool `json:"enabled" mapstructure:"enabled"`
	ChatTTL         int  `json:"chat_ttl" mapstructure:"chat_ttl"`                 // seconds
	DashboardTTL    int  `json:"dashboard_ttl" mapstructure:"dashboard_ttl"`       // seconds
	DiagnosticsTTL  int  `json:"diagnostics_ttl" mapstructure:"diagnostics_ttl"`   // seconds
	JanitorInterval int  `json:"janitor_interval" mapstructure:"janitor_interval"` // seconds
}

// SessionsConfig holds session store settings
type SessionsConfig struct {
	IdleTTL       int    `json:"idle_ttl" mapstructure:"idle_ttl"`           // seconds before an idle session is evicted
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron expression for the eviction sweep
	ArchivePath   string `json:"archive_path" mapstructure:"archive_path"`   // sqlite file for evicted transcripts, empty disables archival
}

// ToolsConfig holds tool collaborator endpoints
type ToolsConfig struct {
	MetricsServiceURL   string `json:"metrics_service_url" mapstructure:"metrics_service_url"`
	DashboardServiceURL string `json:"dashboard_service_url" mapstructure:"dashboard_service_url"`
	RequestTimeout      int    `json:"request_timeout" mapstructure:"request_timeout"` // seconds
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// AdminConfig holds the metrics/admin HTTP listener settings
type AdminConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Profiles: []EngineProfile{},
		},
		Agent: AgentConfig{
			Model:           "gpt-4o",
			Temperature:     0.7,
			MaxTokens:       4096,
			MaxRounds:       5,
			TurnTimeout:     120,
			ToolTimeout:     30,
			ToolParallelism: 4,
		},
		Cache: CacheConfig{
			Enabled:         true,
			ChatTTL:         300,
			DashboardTTL:    3600,
			DiagnosticsTTL:  60,
			JanitorInterval: 60,
		},
		Sessions: SessionsConfig{
			IdleTTL:       24 * 60 * 60,
			SweepSchedule: "@every 10m",
		},
		Tools: ToolsConfig{
			RequestTimeout: 15,
		},
		Fallbacks: map[string]string{},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Admin: AdminConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9090,
		},
	}
}
