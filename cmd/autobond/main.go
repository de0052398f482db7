package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple -c flags supported, later files override earlier ones
	headless    bool
	browserKind string
	driverName  string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "autobond",
	Short:         "Batch new-bond subscription for brokerage accounts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "Run the browser without a window (overrides config)")
	rootCmd.PersistentFlags().StringVar(&browserKind, "browser", "", "Browser kind: chromium, chrome or edge (overrides config)")
	rootCmd.PersistentFlags().StringVar(&driverName, "driver", "", "Automation driver: chromedp or playwright (overrides config)")

	rootCmd.AddCommand(runCmd, scheduleCmd, historyCmd, versionCmd)
}

// loadConfig runs the startup sequence shared by every command:
// defaults -> config files -> .env -> env -> CLI flags, then logger and banner
func loadConfig(cmd *cobra.Command) error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("autobond.toml"); err == nil {
			configFiles = append(configFiles, "autobond.toml")
		} else if _, err := os.Stat("deployments/local/autobond.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/autobond.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return err
	}

	var headlessOverride *bool
	if cmd.Flags().Changed("headless") {
		headlessOverride = &headless
	}
	common.ApplyFlagOverrides(config, headlessOverride, browserKind, driverName)

	logger = common.InitLogger(config)
	common.InstallCrashHandler(common.LogsDir())

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Configuration loaded")
	return nil
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("autobond failed")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
