package runner

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

// Dry prints every mutating action instead of performing it and reports
// success. Read-only queries passed to Stream still execute so that
// change detection and disk lookup produce a realistic plan.
type Dry struct {
	Out   io.Writer
	Query Runner
}

// NewDry returns a print-only Runner. Queries are delegated to query,
// typically an *Exec.
func NewDry(out io.Writer, query Runner) *Dry {
	return &Dry{Out: out, Query: query}
}

func (d *Dry) Run(_ context.Context, name string, args ...string) error {
	fmt.Fprintln(d.Out, CommandLine(name, args...))
	return nil
}

func (d *Dry) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	return d.Query.Stream(ctx, name, args...)
}

func (d *Dry) Remove(path string) error {
	fmt.Fprintf(d.Out, "Removing %s\n", path)
	return nil
}

func (d *Dry) Copy(src, dst string) error {
	fmt.Fprintf(d.Out, "Copying %s to %s\n", src, dst)
	return nil
}

func (d *Dry) MkdirTemp(dir, pattern string) (string, error) {
	if dir == "" {
		dir = "/tmp"
	}
	path := filepath.Join(dir, pattern+"dry-run")
	fmt.Fprintf(d.Out, "Creating directory %s\n", path)
	return path, nil
}

// Exists reports true: paths a dry run would have created are never really
// there, and the plan should still show their teardown.
func (d *Dry) Exists(string) (bool, error) {
	return true, nil
}

func (d *Dry) RemoveDir(path string) error {
	fmt.Fprintf(d.Out, "Removing directory %s\n", path)
	return nil
}
