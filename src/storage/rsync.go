package storage

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"unraid-backup/src/runner"
)

// RsyncBinary is the synchronization tool used for every transfer.
const RsyncBinary = "rsync"

// itemizedFile matches an --itemize-changes line for a regular file that is
// sent to the remote side: "<f" plus the remaining attribute flags, spaces,
// then the path. Directories (cd), symlinks (cL), devices and unchanged
// entries (.f) do not match.
var itemizedFile = regexp.MustCompile(`^<f[^ ]+ +(.*)$`)

// ParseItemizedLine extracts the path from one line of
// `rsync --itemize-changes` output. ok is false for anything other than a
// created or updated regular file.
func ParseItemizedLine(line string) (path string, ok bool) {
	m := itemizedFile.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Rsync pushes directories to a remote host with rsync over ssh.
type Rsync struct {
	runner runner.Runner
	cfg    Config
	log    *log.Logger
}

func NewRsync(r runner.Runner, cfg Config, logger *log.Logger) *Rsync {
	return &Rsync{runner: r, cfg: cfg, log: logger}
}

// args builds an rsync invocation that pushes LocalBase/directory into
// RemoteBase on the target.
func (s *Rsync) args(directory string, options ...string) []string {
	args := append([]string{}, options...)
	return append(args,
		"-e", "ssh -i "+shellQuote(s.cfg.SSHKeyFile),
		filepath.Join(s.cfg.LocalBase, directory),
		fmt.Sprintf("%s@%s:%s/", s.cfg.RemoteUser, s.cfg.Host, strings.TrimRight(s.cfg.RemoteBase, "/")),
	)
}

// UpdatedPaths runs a dry-run comparison against the target. Each range
// over the result starts a new comparison.
func (s *Rsync) UpdatedPaths(ctx context.Context, directory string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rc, err := s.runner.Stream(ctx, RsyncBinary, s.args(directory, "--dry-run", "-iavu")...)
		if err != nil {
			yield("", errors.Wrapf(err, "compare %s with %s", directory, s.cfg.Name))
			return
		}
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			path, ok := ParseItemizedLine(scanner.Text())
			if !ok {
				continue
			}
			if !yield(path, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", errors.Wrapf(err, "read rsync output for %s", directory))
			return
		}
		if err := rc.Close(); err != nil {
			yield("", errors.Wrapf(err, "compare %s with %s", directory, s.cfg.Name))
		}
	}
}

// BackupPath transfers directory recursively, preserving permissions, times
// and special files, with numeric ownership.
func (s *Rsync) BackupPath(ctx context.Context, directory string) error {
	s.log.Info("Syncing directory", "target", s.cfg.Name, "directory", directory)
	args := s.args(directory, "-rlptDvu", "--numeric-ids", "--progress")
	if err := s.runner.Run(ctx, RsyncBinary, args...); err != nil {
		return errors.Wrapf(err, "sync %s to %s", directory, s.cfg.Name)
	}
	return nil
}

func (s *Rsync) Close() error {
	return nil
}

// shellQuote quotes s for the remote-shell string rsync hands to sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
