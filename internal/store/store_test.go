package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headlesssentinel/sentinel/internal/model"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.db")
	s, err := Open(path, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntry(computer string, eventID uint32, level model.Level) model.LogEntry {
	return model.LogEntry{
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		EventID:   eventID,
		Level:     level,
		Source:    "Microsoft-Windows-Security-Auditing",
		Message:   "test",
		Computer:  computer,
		LogName:   "Security",
		RawXML:    "<Event/>",
	}
}

func TestInsertBatch_AssignsIdsInOrder(t *testing.T) {
	s := openTestStore(t)
	entries := []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
		sampleEntry("HOST2", 4624, model.LevelInformation),
	}

	ids, err := s.InsertBatch(context.Background(), entries)

	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])
}

func TestInsertBatch_EmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	ids, err := s.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestQuery_ReturnsInsertedRows(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
	})
	require.NoError(t, err)

	rows, err := s.Query(context.Background(), "SELECT computer, event_id FROM logs")
	require.NoError(t, err)
	defer rows.Close()

	var count int
	for rows.Next() {
		var computer string
		var eventID int64
		require.NoError(t, rows.Scan(&computer, &eventID))
		assert.Equal(t, "HOST1", computer)
		assert.EqualValues(t, 4625, eventID)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestDeleteOlderThan_PurgesOnlyOldRows(t *testing.T) {
	s := openTestStore(t)
	old := sampleEntry("HOST1", 4625, model.LevelError)
	old.Timestamp = time.Now().UTC().AddDate(0, 0, -30)
	recent := sampleEntry("HOST2", 4624, model.LevelInformation)
	recent.Timestamp = time.Now().UTC()

	_, err := s.InsertBatch(context.Background(), []model.LogEntry{old, recent})
	require.NoError(t, err)

	deleted, err := s.DeleteOlderThan(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rows, err := s.Query(context.Background(), "SELECT COUNT(*) FROM logs")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var remaining int
	require.NoError(t, rows.Scan(&remaining))
	assert.Equal(t, 1, remaining)
}

func TestInsertBatch_IdsStrictlyIncreaseAcrossBatches(t *testing.T) {
	s := openTestStore(t)

	first, err := s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
		sampleEntry("HOST1", 4625, model.LevelError),
	})
	require.NoError(t, err)

	second, err := s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST2", 4624, model.LevelInformation),
	})
	require.NoError(t, err)

	assert.Greater(t, second[0], first[len(first)-1])
	assert.Equal(t, first[0]+1, first[1])
}

func TestRecent_ReturnsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
		sampleEntry("HOST2", 4624, model.LevelInformation),
	})
	require.NoError(t, err)

	rows, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "HOST2", rows[0].Computer)
	assert.Equal(t, model.LevelInformation, rows[0].Level)
	assert.Greater(t, rows[0].ID, rows[1].ID)
}

func TestParquet_ExportImportRoundTrip(t *testing.T) {
	src := openTestStore(t)
	_, err := src.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
		sampleEntry("HOST2", 4624, model.LevelInformation),
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "logs.parquet")
	require.NoError(t, src.ExportParquet(context.Background(), path, ""))

	dst, err := Open(filepath.Join(t.TempDir(), "restored.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })
	require.NoError(t, dst.ImportParquet(context.Background(), path))

	rows, err := dst.Query(context.Background(), "SELECT computer, event_id FROM logs ORDER BY event_id")
	require.NoError(t, err)
	defer rows.Close()

	type pair struct {
		computer string
		eventID  int64
	}
	var got []pair
	for rows.Next() {
		var p pair
		require.NoError(t, rows.Scan(&p.computer, &p.eventID))
		got = append(got, p)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []pair{{"HOST2", 4624}, {"HOST1", 4625}}, got)
}

func TestBackup_CopiesFileAndReopens(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
	})
	require.NoError(t, err)

	backupPath := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, s.Backup(context.Background(), backupPath))

	// The live handle still works after reopen.
	_, err = s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST2", 4624, model.LevelInformation),
	})
	require.NoError(t, err)

	restored, err := Open(backupPath, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { restored.Close() })
	rows, err := restored.Query(context.Background(), "SELECT COUNT(*) FROM logs")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 1, n)
}

func TestReportQueries_GroupsCriticalEventsByHost(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
		sampleEntry("HOST1", 4625, model.LevelError),
		sampleEntry("HOST2", 4624, model.LevelInformation),
	})
	require.NoError(t, err)

	report, err := s.ReportQueries(context.Background(), time.Date(2024, 1, 14, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, report.FailedLogins, 1)
	assert.Equal(t, "HOST1", report.FailedLogins[0].Computer)
	assert.Equal(t, int64(2), report.FailedLogins[0].Count)
	assert.NotEmpty(t, report.CriticalEvents)
	assert.NotEmpty(t, report.HostSummaries)
	for _, c := range report.CriticalEvents {
		assert.NotEmpty(t, c.Description)
	}
}
