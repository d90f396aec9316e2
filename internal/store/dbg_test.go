package store

import (
	"context"
	"testing"
	"time"

	"github.com/headlesssentinel/sentinel/internal/model"
)

func TestDebugReport(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertBatch(context.Background(), []model.LogEntry{
		sampleEntry("HOST1", 4625, model.LevelError),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.criticalEvents(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	t.Logf("criticalEvents err: %v", err)
	_, err = s.failedLogins(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	t.Logf("failedLogins err: %v", err)
	_, err = s.errorSummary(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	t.Logf("errorSummary err: %v", err)
	_, err = s.hostSummary(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	t.Logf("hostSummary err: %v", err)
}
