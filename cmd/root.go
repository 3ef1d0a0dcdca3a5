package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/xhad/neardup/internal/logging"
	"github.com/xhad/neardup/pkg/config"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neardup",
		Short: "Near-duplicate detection for web documents",
		Long: `neardup fetches documents, compares each one against every earlier unique
document using MinHash, SimHash and embedding similarity, and classifies the
documents that are not duplicates.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "", "Log format (console, json)")
	cmd.PersistentFlags().Bool("no-embedding", false, "Disable the embedding signal")
	cmd.PersistentFlags().String("classifier", "", "Classifier provider (ollama, anthropic, none)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies persistent flag overrides and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v, _ := cmd.Flags().GetBool("no-embedding"); v {
		cfg.Embedding.Disabled = true
	}
	if v, _ := cmd.Flags().GetString("classifier"); v != "" {
		cfg.SetClassifierProvider(v)
	}

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		errs := make([]error, 0, len(validationErrors))
		for _, ve := range validationErrors {
			errs = append(errs, ve)
		}
		return nil, fmt.Errorf("configuration error: %w", errors.Join(errs...))
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
