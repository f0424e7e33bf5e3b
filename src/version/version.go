// Package version holds the build version, overridden at link time with
// -ldflags "-X unraid-backup/src/version.Version=...".
package version

var Version = "dev"
