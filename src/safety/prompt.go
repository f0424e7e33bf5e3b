// Package safety gates destructive commands behind an interactive
// confirmation.
package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Options are the global flags that influence confirmation.
type Options struct {
	DryRun bool
	Yes    bool
}

// Confirm asks question on out and reads a y/N answer from in.
// No prompt is shown when opts.Yes is set or when opts.DryRun is set, since a
// dry run only prints what it would do. Both cases confirm.
func Confirm(opts Options, in io.Reader, out io.Writer, question string) (bool, error) {
	if opts.Yes || opts.DryRun {
		return true, nil
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.ToLower(strings.TrimSpace(line))
	return ans == "y" || ans == "yes", nil
}
