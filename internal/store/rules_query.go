package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// CountByComputerAndEvent runs the rule engine's grouped-count query
// for the half-open window (since, until], optionally narrowed by
// eventIDs and severity. It satisfies rules.Querier structurally.
func (s *Store) CountByComputerAndEvent(ctx context.Context, since, until time.Time, eventIDs []uint32, severity *model.Level) ([]model.GroupCount, error) {
	var b strings.Builder
	args := []any{since, until}

	b.WriteString("SELECT computer, event_id, COUNT(*) as count FROM logs WHERE timestamp > ? AND timestamp <= ?")

	if len(eventIDs) > 0 {
		placeholders, idArgs := inClauseUint32(eventIDs)
		fmt.Fprintf(&b, " AND event_id IN (%s)", placeholders)
		args = append(args, idArgs...)
	}
	if severity != nil {
		b.WriteString(" AND level = ?")
		args = append(args, severity.String())
	}
	b.WriteString(" GROUP BY computer, event_id")

	rows, err := s.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GroupCount
	for rows.Next() {
		var c model.GroupCount
		if err := rows.Scan(&c.Computer, &c.EventID, &c.Count); err != nil {
			return nil, fmt.Errorf("%w: scan group count row: %v", sentinelerr.ErrStore, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func inClauseUint32(ids []uint32) (string, []any) {
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
