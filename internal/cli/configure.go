package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aldan/opschat/internal/config"
)

var (
	configureProvider     string
	configureAPIKey       string
	configureModel        string
	configureMetricsURL   string
	configureDashboardURL string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write service configuration",
	Long: `Write the OpsChat configuration file.
Sets the reasoning engine profile and the collaborator service endpoints.
Existing settings not covered by flags are preserved.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "", "engine provider (openai or anthropic)")
	configureCmd.Flags().StringVar(&configureAPIKey, "api-key", "", "engine API key")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "model identifier")
	configureCmd.Flags().StringVar(&configureMetricsURL, "metrics-url", "", "metrics query service base URL")
	configureCmd.Flags().StringVar(&configureDashboardURL, "dashboard-url", "", "dashboard service base URL")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if configureProvider != "" || configureAPIKey != "" {
		if configureProvider == "" || configureAPIKey == "" {
			return fmt.Errorf("--provider and --api-key must be set together")
		}
		profile := config.EngineProfile{
			ID:       configureProvider,
			Provider: configureProvider,
			APIKey:   configureAPIKey,
		}
		cfg.Engine.Profiles = upsertProfile(cfg.Engine.Profiles, profile)
		if cfg.Engine.Default == "" {
			cfg.Engine.Default = profile.ID
		}
	}

	if configureModel != "" {
		cfg.Agent.Model = configureModel
	}
	if configureMetricsURL != "" {
		cfg.Tools.MetricsServiceURL = configureMetricsURL
	}
	if configureDashboardURL != "" {
		cfg.Tools.DashboardServiceURL = configureDashboardURL
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	configPath, err := loader.Path()
	if err == nil {
		fmt.Printf("Configuration saved to: %s\n", configPath)
	}
	fmt.Println("You can now start OpsChat with: opschat start")
	return nil
}

func upsertProfile(profiles []config.EngineProfile, profile config.EngineProfile) []config.EngineProfile {
	for i, p := range profiles {
		if p.ID == profile.ID {
			profiles[i] = profile
			return profiles
		}
	}
	return append(profiles, profile)
}
