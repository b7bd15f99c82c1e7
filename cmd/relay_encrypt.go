package cmd

import (
	"github.com/sealdrop/sealdrop/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	encryptInput   string
	encryptOutput  string
	encryptCache   string
	encryptNoCache bool
)

func init() {
	relayEncryptCmd.Flags().StringVarP(&encryptInput, "input", "i", "", "source to watch: a directory or [user@]host:path")
	relayEncryptCmd.Flags().StringVarP(&encryptOutput, "output", "o", "", "directory that receives <recipient>/<item> bundles")
	relayEncryptCmd.Flags().StringVar(&encryptCache, "cache", "", "directory for fetched public keys (defaults to the user cache)")
	relayEncryptCmd.Flags().BoolVar(&encryptNoCache, "no-cache", false, "fetch public keys on every start without touching the disk cache")
	_ = relayEncryptCmd.MarkFlagRequired("input")
	_ = relayEncryptCmd.MarkFlagRequired("output")
}

// resetRelayEncryptState resets the encrypt command's global state for testing.
func resetRelayEncryptState() {
	encryptInput = ""
	encryptOutput = ""
	encryptCache = ""
	encryptNoCache = false
}

var relayEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Seal every new file in a source for each configured target",
	Long: `Watches the input source and, for every file that appears, writes one
bundle per target listed in the configuration to <output>/<target>/<file>.
The input file is removed once every bundle is on disk.

Examples:
  # Watch a local drop directory
  sealdrop relay encrypt --config relay.toml --input ./drop --output ./sealed

  # Poll a directory on another host over SFTP
  sealdrop relay encrypt -c relay.toml -i ops@files.example.com:/srv/drop -o ./sealed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting relay encrypt command")
		spinner, cleanup := startSpinner(Logger, "Preparing to encrypt...", verbose, debug)
		defer cleanup()

		cacheDir := encryptCache
		if encryptNoCache {
			cacheDir = ""
		} else if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		Logger.Debugf("Key cache: %q", cacheDir)

		err := workflows.Encrypt(cmd.Context(), workflows.EncryptOptions{
			ConfigPath: resolveConfigPath(configPath),
			Input:      encryptInput,
			Output:     encryptOutput,
			CacheDir:   cacheDir,
			AuditLog:   auditLog,
			Logger:     Logger,
			Hooks:      sourceHooks(spinner, "Encrypting items from"),
		})
		if err != nil {
			return failure(spinner, "Relay encrypt stopped", err)
		}

		Logger.Infof("Relay encrypt command stopped")
		return nil
	},
}
