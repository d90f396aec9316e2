package store

import (
	"context"
	"fmt"
	"time"

	"github.com/headlesssentinel/sentinel/internal/eventcatalog"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// criticalSecurityEventIDs mirrors generate_report's hardcoded set of
// security-relevant event IDs (logons and failed logons, explicit-
// credential logons, account creation, group membership and special
// privilege assignment).
var criticalSecurityEventIDs = []int{4625, 4624, 4648, 4720, 4732, 4672}

// CriticalEventCount is one (event_id, computer) group from the
// critical-events report query, annotated with the event catalog's
// human description so a front end doesn't need its own copy of the
// event-ID table just to render this row.
type CriticalEventCount struct {
	EventID     int64
	Description string
	Computer    string
	Count       int64
}

// FailedLoginCount is one computer's count of event 4625 occurrences.
type FailedLoginCount struct {
	Computer string
	Count    int64
}

// ErrorSummary is one (computer, log_name) group of Critical/Error rows.
type ErrorSummary struct {
	Computer string
	LogName  string
	Count    int64
}

// HostSummary aggregates severity counts for one host.
type HostSummary struct {
	Computer     string
	TotalEvents  int64
	Critical     int64
	Errors       int64
	Warnings     int64
}

// Report bundles the query results a report renderer needs. Rendering
// itself (Markdown/HTML/JSON) is a front-end concern; this is only the
// data assembly.
type Report struct {
	GeneratedAt    time.Time
	Since          time.Time
	CriticalEvents []CriticalEventCount
	FailedLogins   []FailedLoginCount
	Errors         []ErrorSummary
	HostSummaries  []HostSummary
}

// ReportQueries assembles the report data from rows with timestamp at or
// after since; no upper bound is applied.
func (s *Store) ReportQueries(ctx context.Context, since time.Time) (Report, error) {
	report := Report{GeneratedAt: time.Now().UTC(), Since: since}

	critical, err := s.criticalEvents(ctx, since)
	if err != nil {
		return Report{}, err
	}
	report.CriticalEvents = critical

	failedLogins, err := s.failedLogins(ctx, since)
	if err != nil {
		return Report{}, err
	}
	report.FailedLogins = failedLogins

	errs, err := s.errorSummary(ctx, since)
	if err != nil {
		return Report{}, err
	}
	report.Errors = errs

	hosts, err := s.hostSummary(ctx, since)
	if err != nil {
		return Report{}, err
	}
	report.HostSummaries = hosts

	return report, nil
}

func (s *Store) criticalEvents(ctx context.Context, since time.Time) ([]CriticalEventCount, error) {
	placeholders, args := inClause(criticalSecurityEventIDs)
	args = append([]any{since}, args...)

	rows, err := s.Query(ctx, fmt.Sprintf(`
		SELECT event_id, computer, COUNT(*) as count
		FROM logs
		WHERE timestamp >= ? AND event_id IN (%s)
		GROUP BY event_id, computer
		ORDER BY count DESC
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CriticalEventCount
	for rows.Next() {
		var c CriticalEventCount
		if err := rows.Scan(&c.EventID, &c.Computer, &c.Count); err != nil {
			return nil, fmt.Errorf("%w: scan critical event row: %v", sentinelerr.ErrStore, err)
		}
		c.Description = eventcatalog.Describe(uint32(c.EventID))
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) failedLogins(ctx context.Context, since time.Time) ([]FailedLoginCount, error) {
	rows, err := s.Query(ctx, `
		SELECT computer, COUNT(*) as count
		FROM logs
		WHERE timestamp >= ? AND event_id = 4625
		GROUP BY computer
		ORDER BY count DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailedLoginCount
	for rows.Next() {
		var f FailedLoginCount
		if err := rows.Scan(&f.Computer, &f.Count); err != nil {
			return nil, fmt.Errorf("%w: scan failed login row: %v", sentinelerr.ErrStore, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) errorSummary(ctx context.Context, since time.Time) ([]ErrorSummary, error) {
	rows, err := s.Query(ctx, `
		SELECT computer, log_name, COUNT(*) as count
		FROM logs
		WHERE timestamp >= ? AND level IN ('Critical', 'Error')
		GROUP BY computer, log_name
		ORDER BY count DESC
		LIMIT 20
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorSummary
	for rows.Next() {
		var e ErrorSummary
		if err := rows.Scan(&e.Computer, &e.LogName, &e.Count); err != nil {
			return nil, fmt.Errorf("%w: scan error summary row: %v", sentinelerr.ErrStore, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) hostSummary(ctx context.Context, since time.Time) ([]HostSummary, error) {
	rows, err := s.Query(ctx, `
		SELECT
			computer,
			COUNT(*) as total_events,
			SUM(CASE WHEN level = 'Critical' THEN 1 ELSE 0 END) as critical,
			SUM(CASE WHEN level = 'Error' THEN 1 ELSE 0 END) as errors,
			SUM(CASE WHEN level = 'Warning' THEN 1 ELSE 0 END) as warnings
		FROM logs
		WHERE timestamp >= ?
		GROUP BY computer
		ORDER BY critical DESC, errors DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HostSummary
	for rows.Next() {
		var h HostSummary
		if err := rows.Scan(&h.Computer, &h.TotalEvents, &h.Critical, &h.Errors, &h.Warnings); err != nil {
			return nil, fmt.Errorf("%w: scan host summary row: %v", sentinelerr.ErrStore, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// inClause renders ids as a comma-separated "?" placeholder list
// paired with the corresponding argument slice.
func inClause(ids []int) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}
