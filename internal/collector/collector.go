// Package collector drives log collection from remote Windows hosts: a
// HostCollector handles one host across a set of channels, and a Pool
// fans HostCollectors out across all configured hosts with a bounded
// concurrency cap.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/metrics"
	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/parser"
)

// remoteExecutor is the slice of *executor.Executor a HostCollector
// needs; named locally so tests can supply a fake without a real WinRM
// session.
type remoteExecutor interface {
	Execute(ctx context.Context, script string) (stdout, stderr string, status int, err error)
}

// ChannelStatus records the outcome of collecting one channel on one
// host.
type ChannelStatus struct {
	Channel string
	Entries int
	Err     error
}

// Batch is the result of one HostCollector run: every LogEntry
// successfully parsed across all requested channels, tagged with
// Computer and LogName, plus a status per channel so partial failure is
// visible to the caller without discarding what succeeded.
type Batch struct {
	Host     string
	Entries  []model.LogEntry
	Statuses []ChannelStatus
}

const defaultMaxEvents = 10000

// HostCollector collects from one host across a fixed list of channels.
type HostCollector struct {
	host      string
	channels  []string
	exec      remoteExecutor
	maxEvents int
	log       *logrus.Entry
}

// NewHostCollector builds a HostCollector for host, using exec to run
// the PowerShell query it builds for each channel in channels.
// maxEvents caps each channel's pull; 0 means the default of 10000.
func NewHostCollector(host string, channels []string, exec remoteExecutor, maxEvents int, log *logrus.Entry) *HostCollector {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &HostCollector{
		host:      host,
		channels:  channels,
		exec:      exec,
		maxEvents: maxEvents,
		log:       log.WithField("host", host),
	}
}

// Collect queries every configured channel for events from now-lookback
// onward. A channel that fails
// contributes a ChannelStatus with a non-nil Err and does not prevent
// other channels' entries from being returned.
func (hc *HostCollector) Collect(ctx context.Context, lookback time.Duration) Batch {
	start := time.Now().UTC().Add(-lookback)
	batch := Batch{Host: hc.host}

	for _, channel := range hc.channels {
		select {
		case <-ctx.Done():
			batch.Statuses = append(batch.Statuses, ChannelStatus{Channel: channel, Err: ctx.Err()})
			continue
		default:
		}

		status := ChannelStatus{Channel: channel}

		script := buildEventQuery(channel, start, hc.maxEvents)
		stdout, stderr, exitStatus, err := hc.exec.Execute(ctx, script)
		if err != nil {
			status.Err = fmt.Errorf("execute on %s/%s: %w", hc.host, channel, err)
			hc.log.WithError(err).WithField("channel", channel).Error("collection failed")
			batch.Statuses = append(batch.Statuses, status)
			metrics.HostCollectionFailuresTotal.WithLabelValues(hc.host, channel).Inc()
			continue
		}
		if exitStatus != 0 {
			status.Err = fmt.Errorf("powershell exited %d on %s/%s: %s", exitStatus, hc.host, channel, stderr)
			hc.log.WithField("channel", channel).WithField("status", exitStatus).Error("powershell non-zero exit")
			batch.Statuses = append(batch.Statuses, status)
			metrics.HostCollectionFailuresTotal.WithLabelValues(hc.host, channel).Inc()
			continue
		}

		res := parser.Parse([]byte(stdout))
		for i := range res.Entries {
			res.Entries[i].Computer = hc.host
			res.Entries[i].LogName = channel
		}
		status.Entries = len(res.Entries)
		batch.Entries = append(batch.Entries, res.Entries...)
		batch.Statuses = append(batch.Statuses, status)
		metrics.EventsCollectedTotal.WithLabelValues(hc.host, channel).Add(float64(len(res.Entries)))
		metrics.ParseFailuresTotal.WithLabelValues(hc.host, channel).Add(float64(res.ParseFails))

		hc.log.WithField("channel", channel).WithField("count", len(res.Entries)).Info("collected channel")
	}

	return batch
}

// buildEventQuery builds the Get-WinEvent PowerShell snippet for one
// channel: a FilterHashtable bounded by StartTime, capped at maxEvents,
// each event serialized to XML and followed by the sentinel separator.
func buildEventQuery(channel string, start time.Time, maxEvents int) string {
	timeStr := start.Format("2006-01-02T15:04:05.000Z")
	return fmt.Sprintf(`
$startTime = [DateTime]::Parse('%s')
$events = Get-WinEvent -FilterHashtable @{
    LogName='%s'
    StartTime=$startTime
} -ErrorAction SilentlyContinue -MaxEvents %d

if ($events) {
    $events | ForEach-Object {
        $_.ToXml()
        Write-Output "%s"
    }
}
`, timeStr, channel, maxEvents, parser.Separator)
}
