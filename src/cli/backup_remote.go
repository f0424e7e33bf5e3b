package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"unraid-backup/src/remote"
	"unraid-backup/src/storage"
)

func newBackupRemoteCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-remote [target...]",
		Short: "Mirror configured file shares to their remote targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, stdout, stderr)
			if err != nil {
				return err
			}
			targets := s.cfg.Targets
			if len(args) > 0 {
				targets = nil
				for _, name := range args {
					t, ok := s.cfg.Target(name)
					if !ok {
						return fmt.Errorf("unknown target %q", name)
					}
					targets = append(targets, t)
				}
			}
			if len(targets) == 0 {
				s.log.Warn("No [FileBackup.*] targets configured")
				return nil
			}
			resolved, errs := s.resolveTargets(targets)
			if err := remote.New(s.runner, s.log).BackupAll(s.ctx, resolved, s.cfg.Shares); err != nil {
				errs = append(errs, err)
			}
			if len(errs) == 0 {
				s.log.Info("Remote backups complete", "targets", targetNames(resolved))
			}
			return stderrors.Join(errs...)
		},
	}
}

// resolveTargets loads the key and credential files of every target.
// Targets whose files are unusable are left out and reported.
func (s *session) resolveTargets(targets []storage.Config) ([]storage.Config, []error) {
	var resolved []storage.Config
	var errs []error
	for _, t := range targets {
		r, err := storage.Resolve(t)
		if err != nil {
			s.log.Error("Skipping target", "target", t.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		resolved = append(resolved, r)
	}
	return resolved, errs
}

func targetNames(targets []storage.Config) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}
