package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sealdrop/sealdrop/internal/configs"
	"github.com/sealdrop/sealdrop/internal/ui"
	"github.com/spf13/cobra"
)

var configShowJSON bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output in JSON format")
}

// resetConfigShowState resets the config show command's global state for testing.
func resetConfigShowState() {
	configShowJSON = false
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the configuration",
	Long: `Loads and validates the configuration and prints it. The mail password is
never printed.

Examples:
  sealdrop config show
  sealdrop config show --config relay.toml --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ConfigLogger.Infof("Starting config show command")

		path, err := configFilePath()
		if err != nil {
			return reported(ConfigLogger.ErrorfAndReturn("Failed to resolve config path: %v", err))
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			ConfigLogger.Infof("No configuration at %s", path)
			if configShowJSON {
				fmt.Fprintln(cmd.OutOrStdout(), "{}")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Warning.Sprint("⚠")+" No configuration found at "+ui.Path.Sprint(path))
			fmt.Fprintln(cmd.OutOrStdout(), ui.Info.Sprint("→")+" Run "+ui.Code.Sprint("sealdrop config init")+" to create one")
			return nil
		}

		config, err := configs.Load(path)
		if err != nil {
			return reported(ConfigLogger.ErrorfAndReturn("Failed to load config: %v", err))
		}
		if config.Mail.Pass != "" {
			config.Mail.Pass = "********"
		}

		if configShowJSON {
			output, err := json.MarshalIndent(config, "", "  ")
			if err != nil {
				return reported(ConfigLogger.ErrorfAndReturn("Failed to marshal config to JSON: %v", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		}

		fmt.Fprint(cmd.OutOrStdout(), formatConfig(path, config))
		return nil
	},
}

// formatConfig renders config in a human-readable form.
func formatConfig(path string, config *configs.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s):\n\n", ui.Info.Sprint("Configuration"), path)

	b.WriteString("  Targets:\n")
	if len(config.Targets) == 0 {
		fmt.Fprintf(&b, "    %s\n", ui.Warning.Sprint("none, relay encrypt will refuse to start"))
	}
	for _, target := range config.Targets {
		fmt.Fprintf(&b, "    %-14s %s\n", target.Name, ui.Path.Sprint(target.KeyURL))
	}

	if config.Upload.URL != "" {
		b.WriteString("\n  Upload:\n")
		fmt.Fprintf(&b, "    %-14s %s\n", "URL:", config.Upload.URL)
		fmt.Fprintf(&b, "    %-14s %d\n", "Retries:", config.Upload.Retries)
	}

	if config.Mail.Host != "" {
		b.WriteString("\n  Mail:\n")
		fmt.Fprintf(&b, "    %-14s %s:%s (%s)\n", "Server:", config.Mail.Host, config.Mail.Port, config.Mail.Security)
		fmt.Fprintf(&b, "    %-14s %s\n", "From:", config.Mail.From)
		fmt.Fprintf(&b, "    %-14s %s\n", "To:", strings.Join(config.Mail.To, ", "))
	}

	if config.SSH != (configs.SSH{}) {
		b.WriteString("\n  SSH:\n")
		if config.SSH.IdentityFile != "" {
			fmt.Fprintf(&b, "    %-14s %s\n", "Identity:", config.SSH.IdentityFile)
		}
		if config.SSH.KnownHostsFile != "" {
			fmt.Fprintf(&b, "    %-14s %s\n", "Known hosts:", config.SSH.KnownHostsFile)
		}
		if config.SSH.InsecureIgnoreHostKey {
			fmt.Fprintf(&b, "    %-14s %s\n", "Host keys:", ui.Warning.Sprint("not verified"))
		}
		if config.SSH.Port != 0 {
			fmt.Fprintf(&b, "    %-14s %d\n", "Port:", config.SSH.Port)
		}
		if config.SSH.PollInterval.Duration > 0 {
			fmt.Fprintf(&b, "    %-14s %s\n", "Poll interval:", config.SSH.PollInterval.Duration)
		}
	}

	return b.String()
}
