package cmd

import (
	"github.com/sealdrop/sealdrop/internal/configs"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configVerbose bool
	configDebug   bool
	configFile    string
	ConfigLogger  logger.Logger

	// ConfigCmd is the top-level config command.
	ConfigCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the relay configuration",
		Long: `Provides commands for creating and inspecting the TOML configuration that
lists targets, the upload endpoint, mail settings and SSH options.

Examples:
  # Write an example configuration to the user config file
  sealdrop config init

  # Show the configuration relay commands will use
  sealdrop config show`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ConfigLogger = logger.Logger{
				Verbose: configVerbose,
				Debug:   configDebug,
			}
			ConfigLogger.Debugf("Initializing config command with verbose=%t, debug=%t", configVerbose, configDebug)
		},
	}
)

func init() {
	ConfigCmd.PersistentFlags().BoolVarP(&configVerbose, "verbose", "v", false, "enable verbose output")
	ConfigCmd.PersistentFlags().BoolVarP(&configDebug, "debug", "d", false, "enable debug output")
	ConfigCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file (defaults to the user config file)")

	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}

// configFilePath returns --config or the default user configuration path.
func configFilePath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	settings, err := configs.DefaultSettings()
	if err != nil {
		return "", err
	}
	return settings.ConfigPath, nil
}

// GetConfigCmd returns the ConfigCmd for testing.
func GetConfigCmd() *cobra.Command {
	return ConfigCmd
}

// ResetConfigState resets all config command global variables to their default values for testing.
func ResetConfigState() {
	configVerbose = false
	configDebug = false
	configFile = ""
	resetConfigInitState()
	resetConfigShowState()
	resetCobraFlagState(ConfigCmd)
}
