package cmd

import (
	"fmt"

	"github.com/sealdrop/sealdrop/internal/transport"
	"github.com/sealdrop/sealdrop/internal/ui"
	"github.com/sealdrop/sealdrop/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveStoreDir string
	serveMaxBytes int64
)

func init() {
	relayServeCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	relayServeCmd.Flags().StringVar(&serveStoreDir, "store", "", "keep received uploads in this directory")
	relayServeCmd.Flags().Int64Var(&serveMaxBytes, "max-bytes", transport.DefaultMaxUploadBytes, "largest accepted request body")
}

// resetRelayServeState resets the serve command's global state for testing.
func resetRelayServeState() {
	serveAddr = ":8080"
	serveStoreDir = ""
	serveMaxBytes = transport.DefaultMaxUploadBytes
}

var relayServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local upload endpoint for testing relay send",
	Long: `Accepts POST /upload multipart forms the way relay send produces them and
answers "success". With --store, every received part is written to disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting relay serve command")
		fmt.Println(ui.Success.Sprint("✓") + " Listening on " + ui.Path.Sprint(serveAddr) + " " + ui.Muted.Sprint("Ctrl+C to stop"))

		err := workflows.Serve(cmd.Context(), workflows.ServeOptions{
			Addr:     serveAddr,
			StoreDir: serveStoreDir,
			MaxBytes: serveMaxBytes,
			Logger:   Logger,
		})
		if err != nil {
			return reported(Logger.ErrorfAndReturn("Upload server stopped: %v", err))
		}
		return nil
	},
}
