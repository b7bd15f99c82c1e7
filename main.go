package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sealdrop/sealdrop/cmd"
	"github.com/sealdrop/sealdrop/internal/ui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sealdrop",
	Short: "sealdrop - a store-and-forward encryption relay.",
	Long: `sealdrop picks up files that appear in a watched location, seals each one
independently for every configured recipient and forwards the sealed bundles.
The paired decrypt side opens bundles with a recipient's private key and hands
the plaintext to a final consumer.

Usage:
  sealdrop <command> [flags]

Available Commands:
  relay      Run the encrypt, send, decrypt and serve loops
  keys       Generate and convert recipient keys
  config     Create and inspect the relay configuration

Run 'sealdrop help <command>' for more details on a specific command.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(cmd.RelayCmd)
	rootCmd.AddCommand(cmd.KeysCmd)
	rootCmd.AddCommand(cmd.ConfigCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !cmd.Reported(err) {
			fmt.Fprintln(os.Stderr, ui.Error.Sprint("Error: ")+err.Error())
		}
		os.Exit(1)
	}
}
