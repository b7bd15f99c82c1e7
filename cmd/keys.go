package cmd

import (
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/spf13/cobra"
)

var (
	keysVerbose bool
	keysDebug   bool
	KeysLogger  logger.Logger

	// KeysCmd is the top-level keys command.
	KeysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Create and convert recipient keys",
		Long: `Recipients publish an RSA public key as a JSON document
({"kty":"RSA","n":...,"e":...}) that relay encrypt fetches from a target's
key_url. These commands produce such documents.

Examples:
  # Generate a new key pair for alice
  sealdrop keys generate alice

  # Convert an existing PEM key
  sealdrop keys convert ~/.ssh/alice.pem > alice.json`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			KeysLogger = logger.Logger{
				Verbose: keysVerbose,
				Debug:   keysDebug,
			}
			KeysLogger.Debugf("Initializing keys command with verbose=%t, debug=%t", keysVerbose, keysDebug)
		},
	}
)

func init() {
	KeysCmd.PersistentFlags().BoolVarP(&keysVerbose, "verbose", "v", false, "enable verbose output")
	KeysCmd.PersistentFlags().BoolVarP(&keysDebug, "debug", "d", false, "enable debug output")

	KeysCmd.AddCommand(keysGenerateCmd)
	KeysCmd.AddCommand(keysConvertCmd)
}

// GetKeysCmd returns the KeysCmd for testing.
func GetKeysCmd() *cobra.Command {
	return KeysCmd
}

// ResetKeysState resets all keys command global variables to their default values for testing.
func ResetKeysState() {
	keysVerbose = false
	keysDebug = false
	resetKeysGenerateState()
	resetKeysConvertState()
	resetCobraFlagState(KeysCmd)
}
