// Command galaxy harvests Hatena Bookmark histories with their star tallies
// and serves them over HTTP.
package main

import (
	"os"

	"github.com/Sternrassler/hatebu-galaxy/internal/config"
	"github.com/Sternrassler/hatebu-galaxy/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "galaxy",
		Short:        "galaxy - Hatena Bookmark star harvester",
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigPath+")")

	root.AddCommand(newServeCmd(), newGatherCmd())
	return root
}

// loadConfig reads the configuration and sets up the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
