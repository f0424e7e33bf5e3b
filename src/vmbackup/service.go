// Package vmbackup drives the snapshot → copy → commit lifecycle that backs
// up a running VM disk, and the retention policy applied afterwards.
package vmbackup

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"unraid-backup/src/domain"
	"unraid-backup/src/runner"
	"unraid-backup/src/virsh"
)

// Config is the resolved [VMBackup] section.
type Config struct {
	BackupDir   string // finalized backups
	SnapshotDir string // transient overlays; must differ from BackupDir
	DiskTag     string // block device target to back up, e.g. hdc
	Limit       int    // backups retained per domain
}

// Service backs up domains one at a time. It is not safe for concurrent use,
// and two processes must never operate on the same domain at once.
type Service struct {
	runner runner.Runner
	cfg    Config
	log    *log.Logger
	now    func() time.Time

	// OnState, when set, observes every lifecycle transition.
	OnState func(domain.Domain, State)
}

func New(r runner.Runner, cfg Config, logger *log.Logger) *Service {
	return &Service{runner: r, cfg: cfg, log: logger, now: time.Now}
}

// SetClock replaces the time source used for backup names.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// BackupAll backs up each domain in order. A failing domain is logged and
// reported in the returned error; the remaining domains still run.
func (s *Service) BackupAll(ctx context.Context, domains []domain.Domain) error {
	var errs []error
	for i, d := range domains {
		s.log.Info("Backing up domain", "domain", d.Name, "progress", progress(i, len(domains)))
		if err := s.BackupDomain(ctx, d); err != nil {
			s.log.Error("Domain backup failed", "domain", d.Name, "err", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// BackupDomain copies the domain's disk into the backup directory while a
// snapshot redirects guest writes, then applies retention. Retention is
// skipped when the copy fails.
func (s *Service) BackupDomain(ctx context.Context, d domain.Domain) error {
	dest := filepath.Join(s.cfg.BackupDir, d.FormatBackupName(s.now()))
	err := s.withSnapshot(ctx, d, func() error {
		s.transition(d, Transferring)
		s.log.Info("Copying disk", "domain", d.Name, "src", d.DiskPath, "dst", dest)
		if err := s.runner.Run(ctx, "rsync", "-aP", d.DiskPath, dest); err != nil {
			return errors.Wrapf(err, "copy disk of %s", d.Name)
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = s.RotateBackups(ctx, d)
	return err
}

// withSnapshot runs fn while the domain's disk is frozen behind an overlay.
// The commit runs on every exit path once the snapshot exists.
func (s *Service) withSnapshot(ctx context.Context, d domain.Domain, fn func() error) error {
	if err := s.TakeSnapshot(ctx, d); err != nil {
		return err
	}
	defer func() {
		// Must run even when ctx was cancelled mid-copy.
		if err := s.CommitSnapshot(context.WithoutCancel(ctx), d); err != nil {
			s.log.Error("Snapshot commit failed; overlay and metadata left in place",
				"domain", d.Name, "snapshot", d.SnapshotPath(s.cfg.SnapshotDir), "err", err)
		}
	}()
	return fn()
}

// TakeSnapshot creates the external overlay for the configured disk. After
// it returns, the base image no longer changes and is safe to copy.
func (s *Service) TakeSnapshot(ctx context.Context, d domain.Domain) error {
	s.transition(d, SnapshotRequested)
	s.log.Info("Taking snapshot", "domain", d.Name)
	args := virsh.SnapshotCreateArgs(d, s.cfg.DiskTag, d.SnapshotPath(s.cfg.SnapshotDir))
	if err := s.runner.Run(ctx, virsh.Binary, args...); err != nil {
		s.transition(d, Idle)
		return errors.Wrapf(err, "snapshot %s", d.Name)
	}
	s.transition(d, SnapshotActive)
	return nil
}

// CommitSnapshot merges the overlay back into the base image. Snapshot
// metadata and the overlay file are removed only after a successful commit.
func (s *Service) CommitSnapshot(ctx context.Context, d domain.Domain) error {
	s.transition(d, Committing)
	s.log.Info("Committing snapshot", "domain", d.Name)
	if err := s.runner.Run(ctx, virsh.Binary, virsh.BlockCommitArgs(d, s.cfg.DiskTag)...); err != nil {
		s.transition(d, CommitFailed)
		return errors.Wrapf(err, "commit snapshot of %s", d.Name)
	}
	s.transition(d, Committed)

	var errs []error
	if err := s.runner.Run(ctx, virsh.Binary, virsh.SnapshotDeleteArgs(d)...); err != nil {
		errs = append(errs, errors.Wrapf(err, "delete snapshot metadata of %s", d.Name))
	}
	if err := s.runner.Remove(d.SnapshotPath(s.cfg.SnapshotDir)); err != nil {
		errs = append(errs, errors.Wrapf(err, "remove overlay of %s", d.Name))
	}
	return stderrors.Join(errs...)
}

// Records lists the domain's finalized backups, oldest first. Files that
// are not backups of d are ignored.
func (s *Service) Records(d domain.Domain) ([]domain.Record, error) {
	entries, err := os.ReadDir(s.cfg.BackupDir)
	if err != nil {
		return nil, errors.Wrap(err, "list backup directory")
	}
	var records []domain.Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rec, err := d.ParseBackupName(e.Name())
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})
	return records, nil
}

// RotateBackups deletes the oldest backups of d beyond the retention limit
// and returns what it removed.
func (s *Service) RotateBackups(ctx context.Context, d domain.Domain) ([]domain.Record, error) {
	s.transition(d, Rotating)
	records, err := s.Records(d)
	if err != nil {
		return nil, err
	}
	removed := Expired(records, s.cfg.Limit)
	if len(removed) == 0 {
		s.log.Debug("Nothing to rotate", "domain", d.Name, "backups", len(records), "limit", s.cfg.Limit)
		return nil, nil
	}
	for _, rec := range removed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.log.Info("Removing old backup", "domain", d.Name, "file", rec.Name)
		if err := s.runner.Remove(filepath.Join(s.cfg.BackupDir, rec.Name)); err != nil {
			return nil, errors.Wrapf(err, "remove backup %s", rec.Name)
		}
	}
	return removed, nil
}

// Expired returns the oldest records beyond limit. records must be sorted
// oldest first, as Records returns them.
func Expired(records []domain.Record, limit int) []domain.Record {
	excess := len(records) - limit
	if excess <= 0 {
		return nil
	}
	return records[:excess]
}

// Limit is the configured retention count.
func (s *Service) Limit() int {
	return s.cfg.Limit
}

func (s *Service) transition(d domain.Domain, st State) {
	s.log.Debug("Lifecycle", "domain", d.ID, "state", st)
	if s.OnState != nil {
		s.OnState(d, st)
	}
}

func progress(i, n int) string {
	return fmt.Sprintf("%d/%d", i+1, n)
}
