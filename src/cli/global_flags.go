package cli

import (
	"github.com/spf13/cobra"

	"unraid-backup/src/config"
	"unraid-backup/src/safety"
)

// addGlobalFlags adds the persistent flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("dry-run", false, "Print the commands that would run without changing anything")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Path to the INI configuration file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log lifecycle transitions and other debug output")
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{DryRun: dry, Yes: yes}
}
