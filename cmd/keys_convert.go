package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sealdrop/sealdrop/internal/utils"
	"github.com/sealdrop/sealdrop/internal/workflows"
	"github.com/spf13/cobra"
)

var keysConvertPrivate bool

func init() {
	keysConvertCmd.Flags().BoolVar(&keysConvertPrivate, "private", false, "print the private document when given a private key")
}

// resetKeysConvertState resets the convert command's global state for testing.
func resetKeysConvertState() {
	keysConvertPrivate = false
}

var keysConvertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert a PEM RSA key into a JSON key document",
	Long: `Reads a PEM encoded RSA key from file, or from stdin when no file is given,
and prints the JSON key document. A private key prints its public document
unless --private is set.

Examples:
  sealdrop keys convert alice.pem > alice.json
  openssl rsa -in alice.pem -pubout | sealdrop keys convert`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		KeysLogger.Infof("Starting keys convert command")

		var data []byte
		var err error
		if len(args) == 1 {
			KeysLogger.Debugf("Reading key from %s", args[0])
			data, err = os.ReadFile(args[0])
		} else {
			KeysLogger.Debugf("Reading key from stdin")
			data, err = utils.ReadStdin()
		}
		if err != nil {
			return reported(KeysLogger.ErrorfAndReturn("Failed to read key: %v", err))
		}

		result, err := workflows.ConvertKey(data)
		if err != nil {
			return reported(KeysLogger.ErrorfAndReturn("Failed to convert key: %v", err))
		}

		var doc any = result.Public
		if keysConvertPrivate {
			if result.Private == nil {
				return reported(KeysLogger.ErrorfAndReturn("--private was set but the input is a public key"))
			}
			doc = result.Private
		}

		output, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return reported(KeysLogger.ErrorfAndReturn("Failed to marshal key to JSON: %v", err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(output))
		return nil
	},
}
