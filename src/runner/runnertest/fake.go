// Package runnertest provides an in-memory runner.Runner for unit tests.
package runnertest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"unraid-backup/src/runner"
)

// Call is one recorded interaction with the Fake.
type Call struct {
	Op   string // run|stream|remove|copy|mkdirtemp|rmdir|exists
	Args []string
}

// Line renders the call as a single space-joined string.
func (c Call) Line() string {
	return strings.Join(c.Args, " ")
}

// Fake records every call. Run failures and Stream output are scripted by
// command prefix: among the keys that prefix the space-joined command line,
// the longest wins.
type Fake struct {
	Calls   []Call
	Fail    map[string]int
	Outputs map[string]string
	// Apply makes Remove, Copy, MkdirTemp, RemoveDir and Exists touch the real
	// filesystem, for tests that assert on directory contents.
	Apply bool
}

func New() *Fake {
	return &Fake{Fail: map[string]int{}, Outputs: map[string]string{}}
}

func (f *Fake) Run(_ context.Context, name string, args ...string) error {
	line := append([]string{name}, args...)
	f.Calls = append(f.Calls, Call{Op: "run", Args: line})
	if prefix, ok := longestPrefix(f.Fail, line); ok {
		return &runner.ExitError{Command: runner.CommandLine(name, args...), Code: f.Fail[prefix]}
	}
	return nil
}

func (f *Fake) Stream(_ context.Context, name string, args ...string) (io.ReadCloser, error) {
	line := append([]string{name}, args...)
	f.Calls = append(f.Calls, Call{Op: "stream", Args: line})
	if prefix, ok := longestPrefix(f.Outputs, line); ok {
		return io.NopCloser(strings.NewReader(f.Outputs[prefix])), nil
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func longestPrefix[V any](rules map[string]V, line []string) (string, bool) {
	joined := strings.Join(line, " ")
	best, found := "", false
	for prefix := range rules {
		if strings.HasPrefix(joined, prefix) && (!found || len(prefix) > len(best)) {
			best, found = prefix, true
		}
	}
	return best, found
}

func (f *Fake) Remove(path string) error {
	f.Calls = append(f.Calls, Call{Op: "remove", Args: []string{path}})
	if f.Apply {
		return os.Remove(path)
	}
	return nil
}

func (f *Fake) Copy(src, dst string) error {
	f.Calls = append(f.Calls, Call{Op: "copy", Args: []string{src, dst}})
	if f.Apply {
		return runner.NewExec(nil, nil).Copy(src, dst)
	}
	return nil
}

func (f *Fake) MkdirTemp(dir, pattern string) (string, error) {
	f.Calls = append(f.Calls, Call{Op: "mkdirtemp", Args: []string{dir, pattern}})
	if f.Apply {
		return os.MkdirTemp(dir, pattern)
	}
	return filepath.Join(dir, pattern+"fake"), nil
}

func (f *Fake) RemoveDir(path string) error {
	f.Calls = append(f.Calls, Call{Op: "rmdir", Args: []string{path}})
	if f.Apply {
		return os.Remove(path)
	}
	return nil
}

// Exists consults the real filesystem only when Apply is set; otherwise every
// path exists.
func (f *Fake) Exists(path string) (bool, error) {
	f.Calls = append(f.Calls, Call{Op: "exists", Args: []string{path}})
	if f.Apply {
		return runner.NewExec(nil, nil).Exists(path)
	}
	return true, nil
}

// Ops returns the recorded calls of a given kind.
func (f *Fake) Ops(op string) []Call {
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Ran reports how many Run calls started with prefix.
func (f *Fake) Ran(prefix string) int {
	n := 0
	for _, c := range f.Ops("run") {
		if strings.HasPrefix(c.Line(), prefix) {
			n++
		}
	}
	return n
}
