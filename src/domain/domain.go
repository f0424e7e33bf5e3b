package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeLayout is the timestamp embedded in backup filenames
// (YYYY-MM-DD_HH:MM:SS).
const TimeLayout = "2006-01-02_15:04:05"

// Extension is the disk image format of finalized backups and snapshots.
const Extension = "qcow2"

// ErrNotRecord is returned by ParseBackupName for names that are not a
// backup of the domain.
var ErrNotRecord = errors.New("not a backup record")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Domain is a managed virtual machine.
type Domain struct {
	ID       string // stable key used in file names
	Name     string // name known to the hypervisor
	DiskPath string // file backing the configured disk
}

// Record is a finalized backup of a domain, derived from its filename.
type Record struct {
	Domain Domain
	Name   string
	Time   time.Time
}

// ValidateID checks that id is safe to embed in backup filenames.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid domain id %q: only letters, digits, '-' and '_' are allowed", id)
	}
	return nil
}

// New returns a Domain after validating its identity.
func New(id, name, diskPath string) (Domain, error) {
	if err := ValidateID(id); err != nil {
		return Domain{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Domain{}, fmt.Errorf("domain %s: name must not be empty", id)
	}
	return Domain{ID: id, Name: name, DiskPath: diskPath}, nil
}

// SnapshotName is the hypervisor-side name of the transient snapshot.
func (d Domain) SnapshotName() string {
	return d.ID + "-snapshot"
}

// SnapshotPath is the overlay file that receives writes while a backup is
// running.
func (d Domain) SnapshotPath(snapshotDir string) string {
	return filepath.Join(snapshotDir, d.SnapshotName()+"."+Extension)
}

// FormatBackupName returns <id>.<timestamp>.qcow2 for the given instant.
func (d Domain) FormatBackupName(t time.Time) string {
	return fmt.Sprintf("%s.%s.%s", d.ID, t.Local().Format(TimeLayout), Extension)
}

// ParseBackupName parses a filename produced by FormatBackupName. Any name
// that does not belong to d yields an error wrapping ErrNotRecord.
func (d Domain) ParseBackupName(name string) (Record, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 {
		return Record{}, errors.Wrapf(ErrNotRecord, "%s: expected <id>.<time>.%s", name, Extension)
	}
	id, stamp, ext := parts[0], parts[1], parts[2]
	if id != d.ID {
		return Record{}, errors.Wrapf(ErrNotRecord, "%s: domain id %q does not match %q", name, id, d.ID)
	}
	if ext != Extension {
		return Record{}, errors.Wrapf(ErrNotRecord, "%s: invalid backup file type %q", name, ext)
	}
	t, err := time.ParseInLocation(TimeLayout, stamp, time.Local)
	if err != nil {
		return Record{}, errors.Wrapf(ErrNotRecord, "%s: %v", name, err)
	}
	return Record{Domain: d, Name: name, Time: t}, nil
}
