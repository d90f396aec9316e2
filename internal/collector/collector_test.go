package collector

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureEvent = `<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">
  <System>
    <Provider Name="Microsoft-Windows-Security-Auditing" />
    <EventID>4625</EventID>
    <Level>2</Level>
    <TimeCreated SystemTime="2024-01-15T10:30:00.000Z" />
    <Computer>HOST1</Computer>
  </System>
  <EventData>
    <Data Name="TargetUserName">DOMAIN\alice</Data>
  </EventData>
</Event>`

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

// fakeExecutor returns fixed stdout/err/status for every Execute call,
// or fails if failWith is set.
type fakeExecutor struct {
	stdout   string
	status   int
	failWith error
	delay    time.Duration
	calls    int
}

func (f *fakeExecutor) Execute(ctx context.Context, script string) (string, string, int, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", "", 0, ctx.Err()
		}
	}
	if f.failWith != nil {
		return "", "", 0, f.failWith
	}
	return f.stdout, "", f.status, nil
}

func TestHostCollector_TagsComputerAndLogName(t *testing.T) {
	exec := &fakeExecutor{stdout: fixtureEvent}
	hc := NewHostCollector("10.0.0.1", []string{"Security"}, exec, 0, discardLogger())

	batch := hc.Collect(context.Background(), time.Hour)

	require.Len(t, batch.Entries, 1)
	assert.Equal(t, "10.0.0.1", batch.Entries[0].Computer)
	assert.Equal(t, "Security", batch.Entries[0].LogName)
	require.Len(t, batch.Statuses, 1)
	assert.NoError(t, batch.Statuses[0].Err)
	assert.Equal(t, 1, batch.Statuses[0].Entries)
}

func TestHostCollector_PartialChannelFailureKeepsOtherChannels(t *testing.T) {
	hc := NewHostCollector("10.0.0.2", []string{"Security", "System"},
		&multiChannelExecutor{fail: map[string]bool{"Security": true}, ok: fixtureEvent}, 0, discardLogger())

	batch := hc.Collect(context.Background(), time.Hour)

	require.Len(t, batch.Entries, 1)
	assert.Equal(t, "System", batch.Entries[0].LogName)
	require.Len(t, batch.Statuses, 2)
	var sawErr, sawOK bool
	for _, s := range batch.Statuses {
		if s.Channel == "Security" {
			sawErr = s.Err != nil
		}
		if s.Channel == "System" {
			sawOK = s.Err == nil && s.Entries == 1
		}
	}
	assert.True(t, sawErr)
	assert.True(t, sawOK)
}

type multiChannelExecutor struct {
	fail map[string]bool
	ok   string
}

func (m *multiChannelExecutor) Execute(ctx context.Context, script string) (string, string, int, error) {
	for channel, shouldFail := range m.fail {
		if shouldFail && containsChannel(script, channel) {
			return "", "", 0, errors.New("transport error")
		}
	}
	return m.ok, "", 0, nil
}

func containsChannel(script, channel string) bool {
	return strings.Contains(script, "LogName='"+channel+"'")
}
