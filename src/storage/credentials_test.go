package storage_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"unraid-backup/src/storage"
)

func writeKey(t *testing.T, dir string, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)
	path := filepath.Join(dir, "rsync-key")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolve_LoadsCIFSCredentials(t *testing.T) {
	dir := t.TempDir()
	cfg := cifsConfig("/mnt/user")
	cfg.CIFSUser, cfg.CIFSPassword = "", ""
	cfg.SSHKeyFile = writeKey(t, dir, "")
	cfg.CIFSCredentialsFile = writeFile(t, dir, "creds", "nasuser:pa:ss\n")

	got, err := storage.Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "nasuser", got.CIFSUser)
	assert.Equal(t, "pa:ss", got.CIFSPassword)
}

func TestResolve_Errors(t *testing.T) {
	dir := t.TempDir()

	cfg := rsyncConfig("/mnt/user")
	cfg.SSHKeyFile = filepath.Join(dir, "missing")
	_, err := storage.Resolve(cfg)
	assert.ErrorContains(t, err, "target nas")

	cfg = cifsConfig("/mnt/user")
	cfg.SSHKeyFile = writeKey(t, dir, "")
	cfg.CIFSCredentialsFile = writeFile(t, dir, "bad", "no-colon\n")
	_, err = storage.Resolve(cfg)
	assert.Error(t, err)
}

func TestReadCredentials(t *testing.T) {
	dir := t.TempDir()
	user, pass, err := storage.ReadCredentials(writeFile(t, dir, "ok", "bob:secret\n"))
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
	assert.Equal(t, "secret", pass)

	_, _, err = storage.ReadCredentials(writeFile(t, dir, "bad", "no-colon\n"))
	assert.Error(t, err)
	_, _, err = storage.ReadCredentials(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestValidateKeyFile(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, storage.ValidateKeyFile(writeKey(t, dir, "")))
	assert.NoError(t, storage.ValidateKeyFile(writeKey(t, t.TempDir(), "correct horse")))
	assert.Error(t, storage.ValidateKeyFile(writeFile(t, dir, "junk", "not a key")))
}
