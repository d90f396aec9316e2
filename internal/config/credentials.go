package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/executor"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

const keyringService = "HeadlessSentinel"

// CredentialProvider resolves executor.Credentials for a host through a
// fixed fallback chain: an OS secret store first, then per-host
// environment variables, then the config file itself, then a default
// pair of environment variables. Falling through to the config-file or
// default-pair steps is logged as a warning; the secret-store and
// per-host environment steps are not logged.
type CredentialProvider struct {
	ring    keyring.Keyring
	targets map[string]Target // keyed by IP
	log     *logrus.Entry
}

// NewCredentialProvider opens the OS-appropriate secret store backend
// and indexes cfg's targets by IP for the config-file fallback step.
// Opening the keyring is best-effort: a platform without a usable
// backend (e.g. a headless CI container) falls through to the
// environment-variable steps instead of failing startup.
func NewCredentialProvider(cfg Config, log *logrus.Entry) *CredentialProvider {
	ring, err := keyring.Open(keyring.Config{ServiceName: keyringService})
	if err != nil {
		log.WithError(err).Warn("no usable secret store backend, falling back to environment variables")
		ring = nil
	}

	targets := make(map[string]Target, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets[t.IP] = t
	}

	return &CredentialProvider{ring: ring, targets: targets, log: log}
}

// Credentials implements executor.CredentialProvider.
func (p *CredentialProvider) Credentials(ctx context.Context, hostID string) (executor.Credentials, error) {
	if p.ring != nil {
		if creds, ok := p.fromKeyring(hostID); ok {
			return creds, nil
		}
	}

	if creds, ok := p.fromEnv(envPrefix(hostID)); ok {
		return creds, nil
	}

	if t, ok := p.targets[hostID]; ok && t.Credentials != nil {
		p.log.WithField("host", hostID).Warn("using credentials embedded in config file, prefer a secret store")
		return executor.Credentials{Username: t.Credentials.Username, Password: t.Credentials.Password}, nil
	}

	if creds, ok := p.fromEnv("SENTINEL_DEFAULT"); ok {
		p.log.WithField("host", hostID).Warn("using default credentials, no per-host entry found")
		return creds, nil
	}

	return executor.Credentials{}, fmt.Errorf("%w: no credentials found for host %s", sentinelerr.ErrCredential, hostID)
}

func (p *CredentialProvider) fromKeyring(hostID string) (executor.Credentials, bool) {
	item, err := p.ring.Get(hostID)
	if err != nil {
		return executor.Credentials{}, false
	}
	parts := strings.SplitN(string(item.Data), "\x00", 2)
	if len(parts) != 2 {
		return executor.Credentials{}, false
	}
	return executor.Credentials{Username: parts[0], Password: parts[1]}, true
}

func (p *CredentialProvider) fromEnv(prefix string) (executor.Credentials, bool) {
	user, userOK := os.LookupEnv(prefix + "_USERNAME")
	pass, passOK := os.LookupEnv(prefix + "_PASSWORD")
	if !userOK || !passOK {
		return executor.Credentials{}, false
	}
	return executor.Credentials{Username: user, Password: pass}, true
}

// envPrefix builds the SENTINEL_<HOST>_* prefix for hostID, replacing
// dots with underscores so an IPv4 address is a legal env var name.
func envPrefix(hostID string) string {
	return "SENTINEL_" + strings.ReplaceAll(hostID, ".", "_")
}
