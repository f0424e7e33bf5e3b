package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the root cobra command for the unraid-backup CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "unraid-backup",
		Short:         "Back up running VM disks and mirror file shares to remote targets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd)

	cmd.AddCommand(newVersionCmd(stdout))
	cmd.AddCommand(newBackupVMsCmd(stdout, stderr))
	cmd.AddCommand(newBackupRemoteCmd(stdout, stderr))
	cmd.AddCommand(newListCmd(stdout, stderr))
	cmd.AddCommand(newRotateCmd(stdout, stderr))

	return cmd
}

// Execute runs the CLI with the process stdio. SIGINT and SIGTERM cancel the
// run; in-flight snapshots are still committed before exit.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
