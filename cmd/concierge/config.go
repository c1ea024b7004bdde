package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tclaveria/concierge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Config prints the merged configuration: built-in defaults, the user
config at ~/.config/concierge/config.yaml, a project-level .concierge.yaml,
and environment variables, in ascending precedence.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

func displayConfig(cfg *config.Config) {
	apiKey := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKey = "****"
	}
	model := cfg.Anthropic.Model
	if model == "" {
		model = "(default)"
	}
	dbPath := cfg.Session.DBPath
	if dbPath == "" {
		dbPath = "(in-memory only)"
	}

	fmt.Println("anthropic:")
	fmt.Printf("  api_key: %s\n", apiKey)
	fmt.Printf("  model: %s\n", model)
	fmt.Printf("  use_aws_bedrock: %v\n", cfg.Anthropic.UseAWSBedrock)

	fmt.Println("resolver:")
	fmt.Printf("  confidence_threshold: %v\n", cfg.Resolver.ConfidenceThreshold)
	fmt.Printf("  ambiguity_window: %v\n", cfg.Resolver.AmbiguityWindow)
	fmt.Printf("  timeout: %s\n", cfg.Resolver.Timeout)
	fmt.Printf("  memory_window: %d\n", cfg.Resolver.MemoryWindow)

	fmt.Println("engine:")
	fmt.Printf("  handler_timeout: %s\n", cfg.Engine.HandlerTimeout)
	fmt.Printf("  max_retries: %d\n", cfg.Engine.MaxRetries)
	fmt.Printf("  backoff_base: %s\n", cfg.Engine.BackoffBase)
	fmt.Printf("  backoff_factor: %v\n", cfg.Engine.BackoffFactor)
	fmt.Printf("  max_parallel: %d\n", cfg.Engine.MaxParallel)

	fmt.Println("session:")
	fmt.Printf("  busy_policy: %s\n", cfg.Session.BusyPolicy)
	fmt.Printf("  db_path: %s\n", dbPath)

	fmt.Println("catalog:")
	fmt.Printf("  path: %s\n", cfg.Catalog.Path)
	fmt.Printf("  watch: %v\n", cfg.Catalog.Watch)
}
