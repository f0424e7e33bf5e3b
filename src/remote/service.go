// Package remote mirrors configured file shares to every remote target that
// lists them.
package remote

import (
	"context"
	stderrors "errors"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"unraid-backup/src/runner"
	"unraid-backup/src/storage"
)

// Share is a local directory tree and the targets it is sent to.
type Share struct {
	Name      string
	Directory string // relative to each target's LocalBase
	Targets   []string
}

// Opener acquires a storage for one target.
type Opener func(ctx context.Context, r runner.Runner, cfg storage.Config, logger *log.Logger) (storage.Storage, error)

// Service runs remote backups target by target, share by share.
type Service struct {
	runner runner.Runner
	log    *log.Logger
	open   Opener
}

func New(r runner.Runner, logger *log.Logger) *Service {
	return &Service{runner: r, log: logger, open: storage.Open}
}

// SetOpener replaces how storages are constructed.
func (s *Service) SetOpener(open Opener) {
	s.open = open
}

// SharesFor returns the shares that list target, in configuration order.
func SharesFor(target string, shares []Share) []Share {
	var out []Share
	for _, sh := range shares {
		if slices.Contains(sh.Targets, target) {
			out = append(out, sh)
		}
	}
	return out
}

// BackupAll sends shares to every target. A failing target does not stop
// the next one; all failures are returned together.
func (s *Service) BackupAll(ctx context.Context, targets []storage.Config, shares []Share) error {
	var errs []error
	for _, t := range targets {
		if err := s.BackupTarget(ctx, t, shares); err != nil {
			s.log.Error("Remote backup failed", "target", t.Name, "err", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// BackupTarget opens the target's storage, transfers each share that lists
// it, and always closes the storage. One share's failure does not prevent
// attempts on the remaining shares.
func (s *Service) BackupTarget(ctx context.Context, target storage.Config, shares []Share) (err error) {
	st, err := s.open(ctx, s.runner, target, s.log)
	if err != nil {
		return errors.Wrapf(err, "open target %s", target.Name)
	}
	var errs []error
	defer func() {
		if cerr := st.Close(); cerr != nil {
			errs = append(errs, errors.Wrapf(cerr, "close target %s", target.Name))
		}
		err = stderrors.Join(errs...)
	}()

	for _, sh := range SharesFor(target.Name, shares) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			return
		}
		s.log.Info("Backing up share", "share", sh.Name, "target", target.Name)
		if berr := st.BackupPath(ctx, sh.Directory); berr != nil {
			s.log.Error("Share backup failed", "share", sh.Name, "target", target.Name, "err", berr)
			errs = append(errs, errors.Wrapf(berr, "share %s", sh.Name))
		}
	}
	return nil
}
