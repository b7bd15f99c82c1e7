package cmd

import (
	"github.com/sealdrop/sealdrop/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	sendInput   string
	sendURL     string
	sendRetries int
)

func init() {
	relaySendCmd.Flags().StringVarP(&sendInput, "input", "i", "", "source of bundles, usually <output>/<recipient>")
	relaySendCmd.Flags().StringVar(&sendURL, "url", "", "upload endpoint (overrides [upload] url)")
	relaySendCmd.Flags().IntVar(&sendRetries, "retries", 0, "extra attempts per bundle, 0 disables retrying (overrides [upload] retries)")
	_ = relaySendCmd.MarkFlagRequired("input")
}

// resetRelaySendState resets the send command's global state for testing.
func resetRelaySendState() {
	sendInput = ""
	sendURL = ""
	sendRetries = 0
}

var relaySendCmd = &cobra.Command{
	Use:   "send",
	Short: "Upload sealed bundles to an HTTP endpoint",
	Long: `Watches a directory of bundles and uploads each one as a multipart form
(the ciphertext as files[] and the wrapped key as key). A bundle is removed
once the server answers with a 2xx status.

Examples:
  sealdrop relay send --input ./sealed/alice --url http://localhost:8080/upload
  sealdrop relay send -c relay.toml -i ./sealed/alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting relay send command")
		var retries *int
		if cmd.Flags().Changed("retries") {
			retries = &sendRetries
		}
		spinner, cleanup := startSpinner(Logger, "Preparing to send...", verbose, debug)
		defer cleanup()

		err := workflows.Send(cmd.Context(), workflows.SendOptions{
			ConfigPath: resolveConfigPath(configPath),
			Input:      sendInput,
			URL:        sendURL,
			Retries:    retries,
			AuditLog:   auditLog,
			Logger:     Logger,
			Hooks:      sourceHooks(spinner, "Sending bundles from"),
		})
		if err != nil {
			return failure(spinner, "Relay send stopped", err)
		}

		Logger.Infof("Relay send command stopped")
		return nil
	},
}
