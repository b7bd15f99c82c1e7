package cmd

import (
	"fmt"
	"os"

	"github.com/sealdrop/sealdrop/internal/configs"
	"github.com/sealdrop/sealdrop/internal/ui"
	"github.com/spf13/cobra"
)

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing configuration")
}

// resetConfigInitState resets the config init command's global state for testing.
func resetConfigInitState() {
	configInitForce = false
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration",
	Long: `Writes a configuration with one example target and a local upload endpoint.
Edit the [[targets]] entries before running relay encrypt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ConfigLogger.Infof("Starting config init command")

		path, err := configFilePath()
		if err != nil {
			return reported(ConfigLogger.ErrorfAndReturn("Failed to resolve config path: %v", err))
		}
		ConfigLogger.Debugf("Config path: %s", path)

		if _, err := os.Stat(path); err == nil && !configInitForce {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Warning.Sprint("⚠")+" A configuration already exists at "+ui.Path.Sprint(path))
			fmt.Fprintln(cmd.OutOrStdout(), ui.Info.Sprint("→")+" Run "+ui.Code.Sprint("sealdrop config init --force")+" to replace it")
			return nil
		}

		if err := configs.Save(path, configs.Example()); err != nil {
			return reported(ConfigLogger.ErrorfAndReturn("Failed to write config: %v", err))
		}

		ConfigLogger.Infof("Config init command completed successfully")
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Sprint("✓")+" Configuration written to "+ui.Path.Sprint(path))
		fmt.Fprintln(cmd.OutOrStdout(), ui.Info.Sprint("→")+" Replace the example target with your recipients")
		return nil
	},
}
