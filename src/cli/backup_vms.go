package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"unraid-backup/src/config"
	"unraid-backup/src/domain"
	"unraid-backup/src/virsh"
	"unraid-backup/src/vmbackup"
)

func newBackupVMsCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-vms [domain-id...]",
		Short: "Snapshot, copy and commit the disk of each configured VM, then rotate old backups",
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

			domains, errs := s.resolveDomains(entries)
			svc := vmbackup.New(s.runner, s.cfg.VMBackup, s.log)
			if err := svc.BackupAll(s.ctx, domains); err != nil {
				errs = append(errs, err)
			}
			if len(errs) == 0 {
				s.log.Info("VM backups complete", "domains", len(domains))
			}
			return stderrors.Join(errs...)
		},
	}
}

// resolveDomains looks up the disk behind the configured tag for every entry.
// Entries whose lookup fails are left out and reported.
func (s *session) resolveDomains(entries []config.DomainEntry) ([]domain.Domain, []error) {
	var domains []domain.Domain
	var errs []error
	for _, e := range entries {
		disk, err := virsh.LocateDisk(s.ctx, s.runner, e.Name, s.cfg.VMBackup.DiskTag)
		if err == nil {
			var d domain.Domain
			if d, err = domain.New(e.ID, e.Name, disk); err == nil {
				domains = append(domains, d)
				continue
			}
		}
		s.log.Error("Skipping domain", "domain", e.Name, "err", err)
		errs = append(errs, errors.Wrapf(err, "domain %s", e.ID))
	}
	return domains, errs
}
