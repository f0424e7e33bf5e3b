// Package config resolves the INI configuration file into the explicit
// values each component is constructed with.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"unraid-backup/src/domain"
	"unraid-backup/src/remote"
	"unraid-backup/src/storage"
	"unraid-backup/src/vmbackup"
)

// DefaultPath is used when --config is not given.
const DefaultPath = "/boot/config/custom/unraid-backup.ini"

// Defaults for optional [VMBackup] keys.
const (
	DefaultSnapshotBase = "/mnt/user/domains"
	DefaultDiskTag      = "hdc"
)

// Section type prefixes.
const (
	sectionVMDomain   = "VMDomain"
	sectionFileBackup = "FileBackup"
	sectionFileShare  = "FileShare"
	sectionVMBackup   = "VMBackup"
)

// DomainEntry is a [VMDomain.<key>] section. The disk path is resolved
// from the hypervisor at run time.
type DomainEntry struct {
	Key  string
	ID   string
	Name string
}

// Config is the whole resolved configuration.
type Config struct {
	VMBackup    vmbackup.Config
	HasVMBackup bool
	Domains     []DomainEntry
	Targets     []storage.Config
	Shares      []remote.Share
}

// Load reads and validates the configuration at path. Files a target
// references (SSH key, CIFS credentials) are not opened here; see
// storage.Resolve.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse validates INI content. Key names are case-insensitive; section
// names are matched on their type prefix case-insensitively.
func Parse(data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, data)
	if err != nil {
		return nil, errors.Wrap(err, "parse ini")
	}
	cfg := &Config{}
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			if len(sec.Keys()) > 0 {
				return nil, errors.New("keys outside of a section are not supported")
			}
			continue
		}
		kind, sub := splitSection(sec.Name())
		switch {
		case strings.EqualFold(kind, sectionVMBackup) && sub == "":
			vb, err := parseVMBackup(sec)
			if err != nil {
				return nil, err
			}
			cfg.VMBackup, cfg.HasVMBackup = vb, true
		case strings.EqualFold(kind, sectionVMDomain) && sub != "":
			d, err := parseDomain(sec, sub)
			if err != nil {
				return nil, err
			}
			cfg.Domains = append(cfg.Domains, d)
		case strings.EqualFold(kind, sectionFileBackup) && sub != "":
			t, err := parseFileBackup(sec, sub)
			if err != nil {
				return nil, err
			}
			cfg.Targets = append(cfg.Targets, t)
		case strings.EqualFold(kind, sectionFileShare) && sub != "":
			s, err := parseFileShare(sec, sub)
			if err != nil {
				return nil, err
			}
			cfg.Shares = append(cfg.Shares, s)
		default:
			return nil, fmt.Errorf("unknown section [%s]", sec.Name())
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Domains) > 0 && !c.HasVMBackup {
		return fmt.Errorf("[%s] section is required when domains are configured", sectionVMBackup)
	}
	ids := map[string]string{}
	for _, d := range c.Domains {
		if prev, ok := ids[d.ID]; ok {
			return fmt.Errorf("[%s.%s]: ID %q already used by [%s.%s]", sectionVMDomain, d.Key, d.ID, sectionVMDomain, prev)
		}
		ids[d.ID] = d.Key
	}
	targets := map[string]bool{}
	for _, t := range c.Targets {
		targets[t.Name] = true
	}
	for _, s := range c.Shares {
		for _, name := range s.Targets {
			if !targets[name] {
				return fmt.Errorf("[%s.%s]: unknown backup target %q", sectionFileShare, s.Name, name)
			}
		}
	}
	return nil
}

// Target returns the target configuration with the given name.
func (c *Config) Target(name string) (storage.Config, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return storage.Config{}, false
}

func splitSection(name string) (kind, sub string) {
	kind, sub, _ = strings.Cut(name, ".")
	return kind, sub
}

func required(sec *ini.Section, key string) (string, error) {
	v := strings.TrimSpace(sec.Key(key).String())
	if v == "" {
		return "", fmt.Errorf("[%s]: missing required key %s", sec.Name(), key)
	}
	return v, nil
}

func optional(sec *ini.Section, key, def string) string {
	if v := strings.TrimSpace(sec.Key(key).String()); v != "" {
		return v
	}
	return def
}

func parseVMBackup(sec *ini.Section) (vmbackup.Config, error) {
	base, err := required(sec, "Base")
	if err != nil {
		return vmbackup.Config{}, err
	}
	limitText, err := required(sec, "Limit")
	if err != nil {
		return vmbackup.Config{}, err
	}
	limit, err := strconv.Atoi(limitText)
	if err != nil || limit < 1 {
		return vmbackup.Config{}, fmt.Errorf("[%s]: Limit must be a positive integer, got %q", sec.Name(), limitText)
	}
	vb := vmbackup.Config{
		BackupDir:   filepath.Clean(base),
		SnapshotDir: filepath.Clean(optional(sec, "SnapshotBase", DefaultSnapshotBase)),
		DiskTag:     optional(sec, "DiskTag", DefaultDiskTag),
		Limit:       limit,
	}
	if vb.BackupDir == vb.SnapshotDir {
		return vmbackup.Config{}, fmt.Errorf("[%s]: SnapshotBase must differ from Base", sec.Name())
	}
	return vb, nil
}

func parseDomain(sec *ini.Section, key string) (DomainEntry, error) {
	id, err := required(sec, "ID")
	if err != nil {
		return DomainEntry{}, err
	}
	if err := domain.ValidateID(id); err != nil {
		return DomainEntry{}, errors.Wrapf(err, "[%s]", sec.Name())
	}
	name, err := required(sec, "Name")
	if err != nil {
		return DomainEntry{}, err
	}
	return DomainEntry{Key: key, ID: id, Name: name}, nil
}

func parseFileBackup(sec *ini.Section, name string) (storage.Config, error) {
	t := storage.Config{Name: name}
	fields := []struct {
		key string
		dst *string
	}{
		{"Type", &t.Type},
		{"IP", &t.Host},
		{"LocalBase", &t.LocalBase},
		{"RemoteBase", &t.RemoteBase},
		{"RemoteUser", &t.RemoteUser},
		{"SSHKeyFile", &t.SSHKeyFile},
	}
	for _, f := range fields {
		v, err := required(sec, f.key)
		if err != nil {
			return storage.Config{}, err
		}
		*f.dst = v
	}
	switch t.Type {
	case storage.TypeRsync:
	case storage.TypeCIFSOverRsync:
		volume, err := required(sec, "CIFSVolume")
		if err != nil {
			return storage.Config{}, err
		}
		credFile, err := required(sec, "CIFSCredentialsFile")
		if err != nil {
			return storage.Config{}, err
		}
		t.CIFSVolume, t.CIFSCredentialsFile = volume, credFile
	default:
		return storage.Config{}, fmt.Errorf("[%s]: Type must be %s or %s, got %q",
			sec.Name(), storage.TypeRsync, storage.TypeCIFSOverRsync, t.Type)
	}
	return t, nil
}

func parseFileShare(sec *ini.Section, name string) (remote.Share, error) {
	dir := optional(sec, "Directory", strings.TrimSpace(sec.Key("Share").String()))
	if dir == "" {
		return remote.Share{}, fmt.Errorf("[%s]: missing required key Directory", sec.Name())
	}
	dir = filepath.Clean(dir)
	if filepath.IsAbs(dir) || dir == "." || dir == ".." || strings.HasPrefix(dir, "../") {
		return remote.Share{}, fmt.Errorf("[%s]: Directory must be relative to the target's LocalBase, got %q", sec.Name(), dir)
	}
	list, err := required(sec, "Backup")
	if err != nil {
		return remote.Share{}, err
	}
	var targets []string
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	return remote.Share{Name: name, Directory: dir, Targets: targets}, nil
}
