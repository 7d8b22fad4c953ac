// Command edgelite runs the edge graph engine as an HTTP server, an MCP
// tool server, or a one-shot program runner.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanonone/edgelite/internal/config"
	"github.com/sanonone/edgelite/pkg/engine"
)

var (
	configPath string
	backend    string
	dataDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "edgelite [subcommand]",
	Short: "An embedded edge graph with a small instruction language",
	// Errors are printed once in main.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to the YAML configuration file")
	pf.StringVar(&backend, "backend", "", "store backend [memory, sqlite, badger] (overrides config)")
	pf.StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	pf.StringVar(&logLevel, "log-level", "", "log level [debug, info, warn, error] (overrides config)")

	rootCmd.AddCommand(serveCmd, runCmd, mcpCmd)
}

// loadConfig reads the configuration file, applies flag overrides and
// installs the configured logger as the slog default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Store.Backend = backend
	}
	if flags.Changed("data-dir") {
		cfg.Store.Path = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// openEngine opens the engine described by cfg.
func openEngine(cfg *config.Config) (*engine.Engine, error) {
	opts := cfg.EngineOptions()
	opts.Logger = slog.Default()
	eng, err := engine.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", opts.Backend, err)
	}
	slog.Info("Engine opened", "backend", opts.Backend, "data_dir", opts.DataDir)
	return eng, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edgelite:", err)
		os.Exit(1)
	}
}
