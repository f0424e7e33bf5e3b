package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"unraid-backup/src/runner"
)

// BulkThreshold is the size above which a changed file is copied through
// the mounted share instead of rsync.
const BulkThreshold int64 = units.GiB

// CIFSOverRsync routes large changed files over a mounted CIFS share and
// leaves everything else to the wrapped Storage.
type CIFSOverRsync struct {
	runner     runner.Runner
	inner      Storage
	cfg        Config
	log        *log.Logger
	mountPoint string
	closed     bool

	// Threshold defaults to BulkThreshold; files strictly larger are diverted.
	Threshold int64
}

// NewCIFSOverRsync mounts cfg.CIFSVolume on a fresh temporary directory.
// The mount is released by Close.
func NewCIFSOverRsync(ctx context.Context, r runner.Runner, inner Storage, cfg Config, logger *log.Logger) (*CIFSOverRsync, error) {
	if cfg.CIFSVolume == "" {
		return nil, fmt.Errorf("%s: CIFS volume is not configured", cfg.Name)
	}
	mnt, err := r.MkdirTemp("", "unraid-backup-cifs-")
	if err != nil {
		return nil, errors.Wrap(err, "create mount point")
	}
	logger.Info("Mounting CIFS share", "target", cfg.Name, "volume", cfg.CIFSVolume, "mountpoint", mnt)
	opts := fmt.Sprintf("username=%s,password=%s", cfg.CIFSUser, cfg.CIFSPassword)
	if err := r.Run(ctx, "mount", "-t", "cifs", "-o", opts, cfg.CIFSVolume, mnt); err != nil {
		if rmErr := r.RemoveDir(mnt); rmErr != nil {
			logger.Warn("Could not remove mount point", "mountpoint", mnt, "err", rmErr)
		}
		return nil, errors.Wrapf(err, "mount %s", cfg.CIFSVolume)
	}
	return &CIFSOverRsync{
		runner:     r,
		inner:      inner,
		cfg:        cfg,
		log:        logger,
		mountPoint: mnt,
		Threshold:  BulkThreshold,
	}, nil
}

// MountPoint is the local directory the share is mounted on.
func (s *CIFSOverRsync) MountPoint() string {
	return s.mountPoint
}

func (s *CIFSOverRsync) UpdatedPaths(ctx context.Context, directory string) iter.Seq2[string, error] {
	return s.inner.UpdatedPaths(ctx, directory)
}

// BackupPath copies every changed file larger than Threshold straight into
// the share, then hands the whole directory to the wrapped storage, which
// transfers the small files and verifies the large ones.
func (s *CIFSOverRsync) BackupPath(ctx context.Context, directory string) error {
	// Changed paths are relative to the parent of directory.
	parent := filepath.Join(s.cfg.LocalBase, filepath.Dir(directory))
	for rel, err := range s.inner.UpdatedPaths(ctx, directory) {
		if err != nil {
			return err
		}
		local := filepath.Join(parent, rel)
		info, err := os.Stat(local)
		if err != nil {
			if os.IsNotExist(err) {
				s.log.Warn("Changed file disappeared before copy", "path", local)
				continue
			}
			return errors.Wrapf(err, "stat %s", local)
		}
		if info.Size() <= s.Threshold {
			continue
		}
		remote := filepath.Join(s.mountPoint, rel)
		s.log.Info("Copying large file over CIFS", "path", rel, "size", units.BytesSize(float64(info.Size())))
		if err := s.runner.Copy(local, remote); err != nil {
			return errors.Wrapf(err, "copy %s to share", rel)
		}
	}
	return s.inner.BackupPath(ctx, directory)
}

// Close unmounts the share and removes the mount point if it still exists,
// then closes the wrapped storage.
func (s *CIFSOverRsync) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	exists, err := s.runner.Exists(s.mountPoint)
	if err != nil {
		errs = append(errs, errors.Wrapf(err, "check mount point %s", s.mountPoint))
	}
	if exists {
		s.log.Info("Unmounting CIFS share", "target", s.cfg.Name, "mountpoint", s.mountPoint)
		if err := s.runner.Run(context.Background(), "umount", s.mountPoint); err != nil {
			errs = append(errs, errors.Wrapf(err, "unmount %s", s.mountPoint))
		} else if err := s.runner.RemoveDir(s.mountPoint); err != nil {
			errs = append(errs, errors.Wrapf(err, "remove mount point %s", s.mountPoint))
		}
	}
	if err := s.inner.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}
