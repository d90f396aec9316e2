package config

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

// newTestProvider builds a CredentialProvider with no keyring backend,
// so only the environment-variable and config-file fallback steps are
// exercised.
func newTestProvider(targets map[string]Target) *CredentialProvider {
	return &CredentialProvider{ring: nil, targets: targets, log: discardLogger()}
}

func TestCredentials_FallsBackToPerHostEnvVars(t *testing.T) {
	t.Setenv("SENTINEL_10_0_0_5_USERNAME", "alice")
	t.Setenv("SENTINEL_10_0_0_5_PASSWORD", "secret")

	p := newTestProvider(nil)
	creds, err := p.Credentials(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.Username)
	assert.Equal(t, "secret", creds.Password)
}

func TestCredentials_FallsBackToConfigFileWhenNoEnvVar(t *testing.T) {
	p := newTestProvider(map[string]Target{
		"10.0.0.9": {IP: "10.0.0.9", Credentials: &InlineCredentials{Username: "bob", Password: "hunter2"}},
	})
	creds, err := p.Credentials(context.Background(), "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "bob", creds.Username)
	assert.Equal(t, "hunter2", creds.Password)
}

func TestCredentials_FallsBackToDefaultEnvVars(t *testing.T) {
	t.Setenv("SENTINEL_DEFAULT_USERNAME", "svc-account")
	t.Setenv("SENTINEL_DEFAULT_PASSWORD", "fallback-pass")

	p := newTestProvider(nil)
	creds, err := p.Credentials(context.Background(), "10.0.0.99")
	require.NoError(t, err)
	assert.Equal(t, "svc-account", creds.Username)
}

func TestCredentials_NoSourceReturnsCredentialError(t *testing.T) {
	p := newTestProvider(nil)
	_, err := p.Credentials(context.Background(), "10.0.0.123")
	assert.Error(t, err)
}

func TestCredentials_PerHostEnvVarTakesPriorityOverConfigFile(t *testing.T) {
	t.Setenv("SENTINEL_10_0_0_5_USERNAME", "env-user")
	t.Setenv("SENTINEL_10_0_0_5_PASSWORD", "env-pass")

	p := newTestProvider(map[string]Target{
		"10.0.0.5": {IP: "10.0.0.5", Credentials: &InlineCredentials{Username: "config-user", Password: "config-pass"}},
	})
	creds, err := p.Credentials(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "env-user", creds.Username)
}
