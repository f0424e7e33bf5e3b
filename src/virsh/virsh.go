// Package virsh builds libvirt command lines and parses their text output.
// Builders and parsers are pure; execution goes through a runner.Runner.
package virsh

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"unraid-backup/src/domain"
	"unraid-backup/src/runner"
)

// Binary is the libvirt CLI.
const Binary = "virsh"

// ErrDiskNotFound is returned when a domain has no disk with the wanted tag.
var ErrDiskNotFound = errors.New("disk not found")

// blockListLine matches a `virsh domblklist` row: optional indent, target
// tag, spaces, source path.
var blockListLine = regexp.MustCompile(`^ *([A-Za-z]+) +(.+)$`)

// ParseBlockList returns the source path for tag from `virsh domblklist`
// output. The first two lines (column titles and rule) are skipped.
func ParseBlockList(output, tag string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for n := 0; scanner.Scan(); n++ {
		if n < 2 {
			continue
		}
		m := blockListLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m != nil && m[1] == tag {
			return m[2], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "read block list")
	}
	return "", errors.Wrapf(ErrDiskNotFound, "no block device %q", tag)
}

// LocateDisk asks the hypervisor which file backs tag on the named domain.
// Call it before a snapshot exists, otherwise the overlay path is returned.
func LocateDisk(ctx context.Context, r runner.Runner, domainName, tag string) (string, error) {
	out, err := runner.Output(ctx, r, Binary, "domblklist", domainName)
	if err != nil {
		return "", errors.Wrapf(err, "list block devices of %s", domainName)
	}
	path, err := ParseBlockList(out, tag)
	if err != nil {
		return "", errors.Wrapf(err, "domain %s", domainName)
	}
	return path, nil
}

// SnapshotCreateArgs requests a disk-only, atomic, quiesced external
// snapshot of tag whose overlay is written to snapshotPath.
func SnapshotCreateArgs(d domain.Domain, tag, snapshotPath string) []string {
	return []string{
		"snapshot-create-as",
		"--domain", d.Name,
		d.SnapshotName(),
		"--diskspec", fmt.Sprintf("%s,file=%s", tag, snapshotPath),
		"--disk-only", "--atomic", "--quiesce",
	}
}

// BlockCommitArgs merges the active overlay of tag back into its base and
// pivots the domain onto the base image.
func BlockCommitArgs(d domain.Domain, tag string) []string {
	return []string{"blockcommit", d.Name, tag, "--verbose", "--pivot"}
}

// SnapshotDeleteArgs drops the snapshot's metadata without touching files.
func SnapshotDeleteArgs(d domain.Domain) []string {
	return []string{"snapshot-delete", d.Name, d.SnapshotName(), "--metadata"}
}
