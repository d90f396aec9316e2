package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

type fakeClient struct {
	status    int
	err       error
	failTimes int
	calls     int
}

func (f *fakeClient) RunWithContext(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return 0, errors.New("connection reset")
	}
	if f.err != nil {
		return 0, f.err
	}
	stdout.Write([]byte("ok"))
	return f.status, nil
}

func newTestExecutor(t *testing.T, client *fakeClient, dialErr error) *Executor {
	t.Helper()
	e := New(model.HostTarget{IP: "10.0.0.5"}, Credentials{Username: "u", Password: "p"}, discardLogger())
	e.dial = func(ctx context.Context, target model.HostTarget, creds Credentials) (shellClient, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return client, nil
	}
	return e
}

func TestExecute_SucceedsFirstTry(t *testing.T) {
	client := &fakeClient{status: 0}
	e := newTestExecutor(t, client, nil)

	stdout, _, status, err := e.Execute(context.Background(), "Get-Process")

	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, "ok", stdout)
	assert.Equal(t, 1, client.calls)
}

func TestExecute_RetriesTransportFailureThenSucceeds(t *testing.T) {
	client := &fakeClient{status: 0, failTimes: 2}
	e := newTestExecutor(t, client, nil)
	e.retryDelay = time.Millisecond

	start := time.Now()
	stdout, _, status, err := e.Execute(context.Background(), "Get-Process")

	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, "ok", stdout)
	assert.Equal(t, 3, client.calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_ExhaustsRetriesReturnsTransportError(t *testing.T) {
	client := &fakeClient{failTimes: 99}
	e := newTestExecutor(t, client, nil)
	e.retryDelay = time.Millisecond

	_, _, _, err := e.Execute(context.Background(), "Get-Process")

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinelerr.ErrTransport))
	assert.Equal(t, maxAttempts, client.calls)
}

func TestExecute_ConnectFailureWrapsTransportError(t *testing.T) {
	dialErr := fmt.Errorf("%w: connect to 10.0.0.5: dial refused", sentinelerr.ErrTransport)
	e := newTestExecutor(t, nil, dialErr)
	e.retryDelay = time.Millisecond

	_, _, _, err := e.Execute(context.Background(), "Get-Process")

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinelerr.ErrTransport))
}
