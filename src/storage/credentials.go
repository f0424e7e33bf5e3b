package storage

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Resolve checks the files cfg refers to and returns cfg with CIFS
// credentials loaded. It is called per target right before the target is
// used, so a broken target does not affect anything else.
func Resolve(cfg Config) (Config, error) {
	if err := ValidateKeyFile(cfg.SSHKeyFile); err != nil {
		return Config{}, errors.Wrapf(err, "target %s", cfg.Name)
	}
	if cfg.Type == TypeCIFSOverRsync && cfg.CIFSCredentialsFile != "" {
		user, password, err := ReadCredentials(cfg.CIFSCredentialsFile)
		if err != nil {
			return Config{}, errors.Wrapf(err, "target %s", cfg.Name)
		}
		cfg.CIFSUser, cfg.CIFSPassword = user, password
	}
	return cfg, nil
}

// ReadCredentials reads a single-line user:password file.
func ReadCredentials(path string) (user, password string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", errors.Wrap(err, "read credentials")
	}
	user, password, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok || user == "" {
		return "", "", fmt.Errorf("credentials file %s: expected user:password", path)
	}
	return user, password, nil
}

// ValidateKeyFile checks that path holds a private key ssh can use.
// Passphrase-protected keys are accepted; ssh will prompt or use an agent.
func ValidateKeyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read ssh key")
	}
	if _, err := ssh.ParsePrivateKey(data); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil
		}
		return errors.Wrapf(err, "parse ssh key %s", path)
	}
	return nil
}
