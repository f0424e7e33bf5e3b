package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unraid-backup/src/config"
	"unraid-backup/src/storage"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func sampleConfig(t *testing.T) (text, key, creds string) {
	dir := t.TempDir()
	key = writeFile(t, dir, "rsync-key", "key material is checked per target")
	creds = writeFile(t, dir, "creds", "nasuser:pa:ss\n")
	text = fmt.Sprintf(`
[VMBackup]
Base = /mnt/user/backups
Limit = 4

[VMDomain.ubuntu]
ID = ubuntu
Name = Ubuntu

[VMDomain.win]
id = windows
name = Windows 10-2

[FileBackup.synology]
Type = CIFSOverRsync
IP = 10.0.0.252
LocalBase = /mnt/user
RemoteBase = /volume1/NetBackup
RemoteUser = root
SSHKeyFile = %s
CIFSVolume = //Synology/NetBackup
CIFSCredentialsFile = %s

[FileBackup.offsite]
Type = Rsync
IP = backup.example.net
LocalBase = /mnt/user
RemoteBase = /srv/backup
RemoteUser = backup
SSHKeyFile = %s

[FileShare.media]
Directory = Media
Backup = synology, offsite

[FileShare.docs]
Directory = Documents
Backup = synology
`, key, creds, key)
	return text, key, creds
}

func TestParse_FullConfig(t *testing.T) {
	text, key, creds := sampleConfig(t)
	cfg, err := config.Parse([]byte(text))
	require.NoError(t, err)

	require.True(t, cfg.HasVMBackup)
	assert.Equal(t, "/mnt/user/backups", cfg.VMBackup.BackupDir)
	assert.Equal(t, config.DefaultSnapshotBase, cfg.VMBackup.SnapshotDir)
	assert.Equal(t, config.DefaultDiskTag, cfg.VMBackup.DiskTag)
	assert.Equal(t, 4, cfg.VMBackup.Limit)

	require.Len(t, cfg.Domains, 2)
	assert.Equal(t, config.DomainEntry{Key: "ubuntu", ID: "ubuntu", Name: "Ubuntu"}, cfg.Domains[0])
	assert.Equal(t, config.DomainEntry{Key: "win", ID: "windows", Name: "Windows 10-2"}, cfg.Domains[1])

	syn, ok := cfg.Target("synology")
	require.True(t, ok)
	assert.Equal(t, storage.Config{
		Name:                "synology",
		Type:                storage.TypeCIFSOverRsync,
		Host:                "10.0.0.252",
		LocalBase:           "/mnt/user",
		RemoteBase:          "/volume1/NetBackup",
		RemoteUser:          "root",
		SSHKeyFile:          key,
		CIFSVolume:          "//Synology/NetBackup",
		CIFSCredentialsFile: creds,
	}, syn)

	require.Len(t, cfg.Shares, 2)
	assert.Equal(t, []string{"synology", "offsite"}, cfg.Shares[0].Targets)
	assert.Equal(t, "Documents", cfg.Shares[1].Directory)
}

func TestLoad_ReadsFile(t *testing.T) {
	text, _, _ := sampleConfig(t)
	path := writeFile(t, t.TempDir(), "unraid-backup.ini", text)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Targets, 2)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}

func TestParse_Errors(t *testing.T) {
	key := "/boot/config/ssh/rsync-key"
	cases := map[string]string{
		"unknown section": "[Backups]\nx = 1\n",
		"missing limit":   "[VMBackup]\nBase = /b\n",
		"zero limit":      "[VMBackup]\nBase = /b\nLimit = 0\n",
		"same dirs":       "[VMBackup]\nBase = /b\nLimit = 2\nSnapshotBase = /b/\n",
		"domains need vm": "[VMDomain.a]\nID = a\nName = A\n",
		"bad domain id":   "[VMBackup]\nBase = /b\nLimit = 2\n[VMDomain.a]\nID = a.b\nName = A\n",
		"duplicate id":    "[VMBackup]\nBase = /b\nLimit = 2\n[VMDomain.a]\nID = a\nName = A\n[VMDomain.b]\nID = a\nName = B\n",
		"bad type":        "[FileBackup.x]\nType = FTP\nIP = h\nLocalBase = /l\nRemoteBase = /r\nRemoteUser = u\nSSHKeyFile = " + key + "\n",
		"missing cifs":    "[FileBackup.x]\nType = CIFSOverRsync\nIP = h\nLocalBase = /l\nRemoteBase = /r\nRemoteUser = u\nSSHKeyFile = " + key + "\n",
		"unknown target":  "[FileShare.m]\nDirectory = Media\nBackup = nowhere\n",
		"absolute share":  "[FileBackup.x]\nType = Rsync\nIP = h\nLocalBase = /l\nRemoteBase = /r\nRemoteUser = u\nSSHKeyFile = " + key + "\n[FileShare.m]\nDirectory = /mnt/user/Media\nBackup = x\n",
		"escaping share":  "[FileShare.m]\nDirectory = ../etc\nBackup = x\n",
		"global keys":     "Limit = 3\n",
	}
	for label, text := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := config.Parse([]byte(text))
			assert.Error(t, err)
		})
	}
}

func TestParse_LegacyShareKey(t *testing.T) {
	key := "/boot/config/ssh/rsync-key"
	text := "[FileBackup.nas]\nType = Rsync\nIP = h\nLocalBase = /l\nRemoteBase = /r\nRemoteUser = u\nSSHKeyFile = " + key +
		"\n[FileShare.m]\nShare = Media\nBackup = nas\n"
	cfg, err := config.Parse([]byte(text))
	require.NoError(t, err)
	assert.Equal(t, "Media", cfg.Shares[0].Directory)
}

func TestParse_DoesNotOpenTargetFiles(t *testing.T) {
	text := `[VMBackup]
Base = /mnt/user/backups
Limit = 2

[VMDomain.ubuntu]
ID = ubuntu
Name = Ubuntu

[FileBackup.nas]
Type = CIFSOverRsync
IP = 10.0.0.252
LocalBase = /mnt/user
RemoteBase = /volume1/NetBackup
RemoteUser = root
SSHKeyFile = /nonexistent/key
CIFSVolume = //Synology/NetBackup
CIFSCredentialsFile = /nonexistent/creds
`
	cfg, err := config.Parse([]byte(text))
	require.NoError(t, err)
	require.Len(t, cfg.Domains, 1)
	nas, ok := cfg.Target("nas")
	require.True(t, ok)
	assert.Equal(t, "/nonexistent/key", nas.SSHKeyFile)
	assert.Equal(t, "/nonexistent/creds", nas.CIFSCredentialsFile)
}
