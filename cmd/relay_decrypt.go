package cmd

import (
	"github.com/sealdrop/sealdrop/internal/utils"
	"github.com/sealdrop/sealdrop/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	decryptSource          string
	decryptSink            string
	decryptOutput          string
	decryptPrivateKey      string
	decryptKeyStdin        bool
	decryptDiscardFailures bool
)

func init() {
	relayDecryptCmd.Flags().StringVarP(&decryptSource, "source", "s", "", "source of bundles: a directory or [user@]host:path")
	relayDecryptCmd.Flags().StringVar(&decryptSink, "sink", workflows.SinkDir, "where plaintext goes: dir, mail or log")
	relayDecryptCmd.Flags().StringVarP(&decryptOutput, "output", "o", "", "directory for the dir sink")
	relayDecryptCmd.Flags().StringVarP(&decryptPrivateKey, "private-key", "k", "", "JSON or PEM private key")
	relayDecryptCmd.Flags().BoolVar(&decryptKeyStdin, "private-key-stdin", false, "read the private key from stdin")
	relayDecryptCmd.Flags().BoolVar(&decryptDiscardFailures, "discard-failures", false, "drop bundles that cannot be opened instead of stopping")
	_ = relayDecryptCmd.MarkFlagRequired("source")
	relayDecryptCmd.MarkFlagsMutuallyExclusive("private-key", "private-key-stdin")
}

// resetRelayDecryptState resets the decrypt command's global state for testing.
func resetRelayDecryptState() {
	decryptSource = ""
	decryptSink = workflows.SinkDir
	decryptOutput = ""
	decryptPrivateKey = ""
	decryptKeyStdin = false
	decryptDiscardFailures = false
}

var relayDecryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Open bundles with a private key and deliver the plaintext",
	Long: `Watches a source of bundles sealed for one recipient, opens each with the
recipient's private key and hands the plaintext to a sink. A bundle is removed
from the source only after the sink accepted it.

A bundle that fails to open stops the command unless --discard-failures is
set, in which case it is logged and removed.

Examples:
  # Recover files into a directory
  sealdrop relay decrypt --source ./sealed/alice --private-key alice.private.json --output ./plain

  # Mail every recovered file using the [mail] settings
  sealdrop relay decrypt -c relay.toml -s ./sealed/alice -k alice.pem --sink mail

  # Key from a secrets manager
  vault kv get -field=key secret/alice | sealdrop relay decrypt -s ./sealed/alice --private-key-stdin --sink log`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting relay decrypt command")
		Logger.Debugf("Flags: sink=%s, output=%s, discard-failures=%t", decryptSink, decryptOutput, decryptDiscardFailures)

		opts := workflows.DecryptOptions{
			ConfigPath:      resolveConfigPath(configPath),
			Source:          decryptSource,
			Sink:            decryptSink,
			Output:          decryptOutput,
			PrivateKeyPath:  decryptPrivateKey,
			DiscardFailures: decryptDiscardFailures,
			AuditLog:        auditLog,
			Logger:          Logger,
		}

		// Read stdin before the spinner takes over the terminal.
		if decryptKeyStdin {
			data, err := utils.ReadStdin()
			if err != nil {
				return reported(Logger.ErrorfAndReturn("Failed to read private key from stdin: %v", err))
			}
			opts.PrivateKeyData = data
		}

		spinner, cleanup := startSpinner(Logger, "Preparing to decrypt...", verbose, debug)
		defer cleanup()
		opts.Hooks = sourceHooks(spinner, "Decrypting bundles from")

		if err := workflows.Decrypt(cmd.Context(), opts); err != nil {
			return failure(spinner, "Relay decrypt stopped", err)
		}

		Logger.Infof("Relay decrypt command stopped")
		return nil
	},
}
