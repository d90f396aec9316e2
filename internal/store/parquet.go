package store

import (
	"context"
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// parquetRow is the on-disk Parquet schema for one logs row.
type parquetRow struct {
	ID        int64  `parquet:"name=id, type=INT64"`
	Timestamp string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	Computer  string `parquet:"name=computer, type=BYTE_ARRAY, convertedtype=UTF8"`
	LogName   string `parquet:"name=log_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventID   int64  `parquet:"name=event_id, type=INT64"`
	Level     string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source    string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Message   string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8"`
	User      string `parquet:"name=user, type=BYTE_ARRAY, convertedtype=UTF8"`
	RawXML    string `parquet:"name=raw_xml, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every row matching the optional where clause (a
// bare SQL boolean expression, no "WHERE" keyword) to a Parquet file
// at path.
func (s *Store) ExportParquet(ctx context.Context, path string, where string) error {
	query := `SELECT id, timestamp, computer, log_name, event_id, level, source, message, user, raw_xml, created_at FROM logs`
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := s.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("%w: open parquet file: %v", sentinelerr.ErrStore, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		return fmt.Errorf("%w: new parquet writer: %v", sentinelerr.ErrStore, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for rows.Next() {
		var r parquetRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Computer, &r.LogName, &r.EventID, &r.Level, &r.Source, &r.Message, &r.User, &r.RawXML, &r.CreatedAt); err != nil {
			return fmt.Errorf("%w: scan row for export: %v", sentinelerr.ErrStore, err)
		}
		if err := pw.Write(r); err != nil {
			return fmt.Errorf("%w: write parquet row: %v", sentinelerr.ErrStore, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate export rows: %v", sentinelerr.ErrStore, err)
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("%w: finalize parquet file: %v", sentinelerr.ErrStore, err)
	}

	s.log.WithField("path", path).Info("exported logs to parquet")
	return nil
}

// ImportParquet reads rows from the Parquet file at path and inserts
// them into the store, preserving their original ids.
func (s *Store) ImportParquet(ctx context.Context, path string) error {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return fmt.Errorf("%w: open parquet file: %v", sentinelerr.ErrStore, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(parquetRow), 4)
	if err != nil {
		return fmt.Errorf("%w: new parquet reader: %v", sentinelerr.ErrStore, err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	rows := make([]parquetRow, total)
	if err := pr.Read(&rows); err != nil {
		return fmt.Errorf("%w: read parquet rows: %v", sentinelerr.ErrStore, err)
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin import: %v", sentinelerr.ErrStore, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO logs (id, timestamp, computer, log_name, event_id, level, source, message, user, raw_xml, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare import insert: %v", sentinelerr.ErrStore, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Timestamp, r.Computer, r.LogName, r.EventID, r.Level, r.Source, r.Message, r.User, r.RawXML, r.CreatedAt); err != nil {
			return fmt.Errorf("%w: insert imported row: %v", sentinelerr.ErrStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit import: %v", sentinelerr.ErrStore, err)
	}

	s.log.WithField("path", path).WithField("rows", len(rows)).Info("imported logs from parquet")
	return nil
}
