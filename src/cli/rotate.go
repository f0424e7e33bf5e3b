package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"unraid-backup/src/domain"
	"unraid-backup/src/safety"
	"unraid-backup/src/vmbackup"
)

func newRotateCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate [domain-id...]",
		Short: "Delete VM backups beyond the retention limit without taking a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, stdout, stderr)
			if err != nil {
				return err
			}
			if !s.cfg.HasVMBackup {
				return fmt.Errorf("no [VMBackup] section in configuration")
			}
			entries, err := selectDomains(s.cfg.Domains, args)
			if err != nil {
				return err
			}
			svc := vmbackup.New(s.runner, s.cfg.VMBackup, s.log)

			var targets []domain.Domain
			var rows [][]string
			for _, e := range entries {
				d := domain.Domain{ID: e.ID, Name: e.Name}
				records, err := svc.Records(d)
				if err != nil {
					return err
				}
				expired := vmbackup.Expired(records, svc.Limit())
				if len(expired) == 0 {
					continue
				}
				targets = append(targets, d)
				for _, rec := range expired {
					rows = append(rows, []string{e.ID, rec.Time.Format("2006-01-02 15:04:05"), "delete", rec.Name})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintf(stdout, "Nothing to rotate; every domain has at most %d backups\n", svc.Limit())
				return nil
			}
			fmt.Fprintln(stdout, renderTable([]string{"DOMAIN", "TIME", "ACTION", "FILE"}, rows))

			ok, err := safety.Confirm(s.opts, cmd.InOrStdin(), stdout, fmt.Sprintf("Delete %d backups?", len(rows)))
			if err != nil || !ok {
				return err
			}
			for _, d := range targets {
				if _, err := svc.RotateBackups(s.ctx, d); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
