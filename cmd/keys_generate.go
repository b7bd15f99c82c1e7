package cmd

import (
	"path/filepath"

	"github.com/sealdrop/sealdrop/internal/configs"
	"github.com/sealdrop/sealdrop/internal/ui"
	"github.com/sealdrop/sealdrop/internal/utils"
	"github.com/sealdrop/sealdrop/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	keysGenerateDir  string
	keysGenerateBits int
)

func init() {
	keysGenerateCmd.Flags().StringVar(&keysGenerateDir, "dir", "", "directory for the key documents (defaults to the user keys directory)")
	keysGenerateCmd.Flags().IntVar(&keysGenerateBits, "bits", 4096, "RSA modulus size")
}

// resetKeysGenerateState resets the generate command's global state for testing.
func resetKeysGenerateState() {
	keysGenerateDir = ""
	keysGenerateBits = 4096
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a recipient key pair",
	Long: `Generates an RSA key pair and writes <name>.json (publish this one) and
<name>.private.json (mode 0600, keep it secret) to the keys directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		KeysLogger.Infof("Starting keys generate command")
		spinner, cleanup := startSpinner(KeysLogger, "Generating key pair...", keysVerbose, keysDebug)
		defer cleanup()

		dir := keysGenerateDir
		if dir == "" {
			settings, err := configs.DefaultSettings()
			if err != nil {
				return failure(spinner, "Failed to resolve the keys directory", err)
			}
			dir = settings.KeysDir
		}
		KeysLogger.Debugf("Keys directory: %s, bits: %d", dir, keysGenerateBits)

		result, err := workflows.GenerateKeys(workflows.GenerateKeysOptions{
			Dir:  dir,
			Name: args[0],
			Bits: keysGenerateBits,
		})
		if err != nil {
			return failure(spinner, "Failed to generate a key pair for "+ui.Highlight.Sprint(args[0]), err)
		}

		KeysLogger.Infof("Keys generate command completed successfully")
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Key pair for " + ui.Highlight.Sprint(args[0]) + " generated\n" +
			"The following files were created: " + utils.FormatPaths([]string{result.PublicPath, result.PrivatePath}) +
			ui.Info.Sprint("→") + " Publish " + ui.Path.Sprint(filepath.Base(result.PublicPath)) +
			" and point a target's " + ui.Code.Sprint("key_url") + " at it. Keep the private key secret"
		return nil
	},
}
