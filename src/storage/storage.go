// Package storage mirrors local directory trees to a remote backup target.
package storage

import (
	"context"
	"fmt"
	"iter"

	"github.com/charmbracelet/log"

	"unraid-backup/src/runner"
)

// Storage transfers directory trees to one remote target.
type Storage interface {
	// UpdatedPaths yields the regular files under directory that a transfer
	// would create or update, as paths relative to the directory's parent.
	// The sequence is lazy; each range starts a new comparison.
	UpdatedPaths(ctx context.Context, directory string) iter.Seq2[string, error]
	// BackupPath transfers directory to the target.
	BackupPath(ctx context.Context, directory string) error
	// Close releases held resources. Calling it again is a no-op.
	Close() error
}

// Transport types accepted in the Type key of a [FileBackup.*] section.
const (
	TypeRsync         = "Rsync"
	TypeCIFSOverRsync = "CIFSOverRsync"
)

// Config describes one remote target.
type Config struct {
	Name       string
	Type       string
	Host       string
	LocalBase  string
	RemoteBase string
	RemoteUser string
	SSHKeyFile string

	// CIFSOverRsync only. CIFSUser and CIFSPassword are filled from
	// CIFSCredentialsFile by Resolve.
	CIFSVolume          string
	CIFSCredentialsFile string
	CIFSUser            string
	CIFSPassword        string
}

// Open constructs the storage variant named by cfg.Type. For CIFSOverRsync
// this mounts the share; the caller must Close the result.
func Open(ctx context.Context, r runner.Runner, cfg Config, logger *log.Logger) (Storage, error) {
	switch cfg.Type {
	case TypeRsync:
		return NewRsync(r, cfg, logger), nil
	case TypeCIFSOverRsync:
		return NewCIFSOverRsync(ctx, r, NewRsync(r, cfg, logger), cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
