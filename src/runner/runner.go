package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"unraid-backup/src/util/progress"
)

// Runner performs the side effects of a backup run: external commands and
// the handful of file operations the orchestrators need.
type Runner interface {
	// Run executes a command to completion. A non-zero exit status is
	// reported as an *ExitError.
	Run(ctx context.Context, name string, args ...string) error
	// Stream starts a read-only query command and returns its stdout.
	// Closing the reader waits for the process and reports its status.
	Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error)
	Remove(path string) error
	// Copy copies a regular file, creating missing parent directories of dst.
	Copy(src, dst string) error
	MkdirTemp(dir, pattern string) (string, error)
	RemoveDir(path string) error
	// Exists reports whether path is present.
	Exists(path string) (bool, error)
}

// ExitError reports a command that ran but did not succeed.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
}

// Output runs a query command through r and returns everything it wrote to
// stdout.
func Output(ctx context.Context, r Runner, name string, args ...string) (string, error) {
	rc, err := r.Stream(ctx, name, args...)
	if err != nil {
		return "", err
	}
	data, readErr := io.ReadAll(rc)
	closeErr := rc.Close()
	if readErr != nil {
		return "", errors.Wrapf(readErr, "read output of %s", name)
	}
	if closeErr != nil {
		return "", closeErr
	}
	return string(data), nil
}

// Exec is the Runner that really does things.
type Exec struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExec returns a Runner wired to the given writers for command output.
func NewExec(stdout, stderr io.Writer) *Exec {
	return &Exec{Stdout: stdout, Stderr: stderr}
}

func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	return wrapExit(cmd.Run(), name, args)
}

func (e *Exec) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = e.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "capture stdout of %s", name)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", name)
	}
	return &process{ReadCloser: stdout, cmd: cmd, name: name, args: args}, nil
}

func (e *Exec) Remove(path string) error {
	return os.Remove(path)
}

func (e *Exec) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	body := progress.NewReader(in, info.Size(), filepath.Base(src), e.Stdout)
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func (e *Exec) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (e *Exec) RemoveDir(path string) error {
	return os.Remove(path)
}

func (e *Exec) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

type process struct {
	io.ReadCloser
	cmd    *exec.Cmd
	name   string
	args   []string
	closed bool
}

func (p *process) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	// Drain so the child never blocks on a full pipe before Wait.
	_, _ = io.Copy(io.Discard, p.ReadCloser)
	return wrapExit(p.cmd.Wait(), p.name, p.args)
}

func wrapExit(err error, name string, args []string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: CommandLine(name, args...), Code: exitErr.ExitCode()}
	}
	return errors.Wrapf(err, "run %s", name)
}

var passwordOption = regexp.MustCompile(`(password=)[^,]*`)

// CommandLine renders a command the way an operator would type it, with
// password= option values masked.
func CommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		a = passwordOption.ReplaceAllString(a, "${1}***")
		if a == "" || strings.ContainsAny(a, " \t'\"") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
