package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"unraid-backup/src/config"
	"unraid-backup/src/logging"
	"unraid-backup/src/runner"
	"unraid-backup/src/safety"
)

type runnerFactoryFunc func(dryRun bool, stdout, stderr io.Writer) runner.Runner

var newRunnerFn runnerFactoryFunc = defaultRunner

func defaultRunner(dryRun bool, stdout, stderr io.Writer) runner.Runner {
	exec := runner.NewExec(stdout, stderr)
	if dryRun {
		return runner.NewDry(stdout, exec)
	}
	return exec
}

// SetRunnerFactoryForTest allows tests to replace how commands are executed.
// The returned function restores the previous factory.
func SetRunnerFactoryForTest(fn func(dryRun bool, stdout, stderr io.Writer) runner.Runner) func() {
	prev := newRunnerFn
	newRunnerFn = fn
	return func() {
		newRunnerFn = prev
	}
}

// session is what every subcommand needs after flag parsing.
type session struct {
	ctx    context.Context
	cfg    *config.Config
	runner runner.Runner
	log    *log.Logger
	opts   safety.Options
}

func newSession(cmd *cobra.Command, stdout, stderr io.Writer) (*session, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts := getSafetyOptions(cmd)
	return &session{
		ctx:    ctx,
		cfg:    cfg,
		runner: newRunnerFn(opts.DryRun, stdout, stderr),
		log:    logging.New(stderr, verbose),
		opts:   opts,
	}, nil
}

// selectDomains returns the configured domains whose ID is in ids, or all
// of them when ids is empty.
func selectDomains(entries []config.DomainEntry, ids []string) ([]config.DomainEntry, error) {
	if len(ids) == 0 {
		return entries, nil
	}
	var out []config.DomainEntry
	for _, id := range ids {
		i := slices.IndexFunc(entries, func(e config.DomainEntry) bool { return e.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("unknown domain %q", id)
		}
		out = append(out, entries[i])
	}
	return out, nil
}
