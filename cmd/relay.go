package cmd

import (
	"os"

	"github.com/sealdrop/sealdrop/internal/configs"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbose    bool
	debug      bool
	configPath string
	auditLog   string
	Logger     logger.Logger

	RelayCmd = &cobra.Command{
		Use:   "relay",
		Short: "Encrypt, forward and decrypt payloads",
		Long: `Runs the long-lived halves of the relay.

Each command watches a source (a local directory or [user@]host:path over
SFTP) and processes items as they arrive, until interrupted:

  encrypt   seal every new file for each configured target
  send      upload sealed bundles to an HTTP endpoint
  decrypt   open bundles with a private key and hand the plaintext to a sink
  serve     run a local upload endpoint for testing`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			Logger = logger.Logger{
				Verbose: verbose,
				Debug:   debug,
			}
			Logger.Debugf("Initializing relay command with verbose=%t, debug=%t", verbose, debug)
		},
	}
)

func init() {
	RelayCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	RelayCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	RelayCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the TOML configuration (defaults to the user config file if present)")
	RelayCmd.PersistentFlags().StringVar(&auditLog, "audit-log", "", "append one JSON line per processed item to this file")

	RelayCmd.AddCommand(relayEncryptCmd)
	RelayCmd.AddCommand(relayDecryptCmd)
	RelayCmd.AddCommand(relaySendCmd)
	RelayCmd.AddCommand(relayServeCmd)
}

// resolveConfigPath returns the --config value, or the user configuration
// file when the flag is empty and that file exists.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	settings, err := configs.DefaultSettings()
	if err != nil {
		Logger.Debugf("No default settings: %v", err)
		return ""
	}
	if _, err := os.Stat(settings.ConfigPath); err != nil {
		return ""
	}
	Logger.Debugf("Using config file %s", settings.ConfigPath)
	return settings.ConfigPath
}

// defaultCacheDir returns the per-user key cache, or "" if it cannot be
// determined.
func defaultCacheDir() string {
	settings, err := configs.DefaultSettings()
	if err != nil {
		return ""
	}
	return settings.CacheDir
}

// GetRelayCmd returns the RelayCmd for testing.
func GetRelayCmd() *cobra.Command {
	return RelayCmd
}

// ResetGlobalState resets all relay command global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	configPath = ""
	auditLog = ""
	resetRelayEncryptState()
	resetRelayDecryptState()
	resetRelaySendState()
	resetRelayServeState()
	resetCobraFlagState(RelayCmd)
}

// resetCobraFlagState clears Changed on every flag of cmd and its children
// to prevent test pollution.
func resetCobraFlagState(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) { flag.Changed = false }
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetCobraFlagState(child)
	}
}
