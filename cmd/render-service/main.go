package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/common/config"
	logutil "github.com/edgecomet/pagerender/internal/common/logger"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

var flagConfigPath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "configs/render-service.yaml",
		"Path to render service configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "render-service:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "render-service",
	Short:         "Renders web pages to HTML or PNG through headless Chrome",
	SilenceUsage:  true,
	SilenceErrors: true,
	// running without a subcommand serves
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP render service",
	RunE:  runServe,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(zap.NewNop())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %s (server %s on %s)\n", path, cfg.Server.ID, cfg.Server.Listen)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "render-service: %s\n", version)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(out, "go:             %s\n", info.GoVersion)
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					fmt.Fprintf(out, "commit:         %s\n", s.Value)
				}
			}
		}
	},
}

// loadConfig resolves the --config path and loads the validated configuration
func loadConfig(logger *zap.Logger) (*config.RSConfig, string, error) {
	absPath, err := config.GetConfigPath(flagConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("invalid config path: %w", err)
	}

	configMgr, err := config.NewRSConfigManager(absPath, logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}

	return configMgr.GetConfig(), absPath, nil
}

func newBootstrapLogger() (*zap.Logger, error) {
	initial, err := logutil.NewDefaultLogger()
	if err != nil {
		return nil, err
	}
	return initial.Logger, nil
}
