package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/makeasinger/showrunner/internal/model"
)

// AppendLog writes one generation log entry.
func (s *Store) AppendLog(ctx context.Context, entry *model.GenerationLog) error {
	var track, duration, mdl, errText any
	if entry.TrackNumber != nil {
		track = *entry.TrackNumber
	}
	if entry.DurationMs != nil {
		duration = *entry.DurationMs
	}
	if entry.Model != nil {
		mdl = nullableString(*entry.Model)
	}
	if entry.Error != nil {
		errText = nullableString(*entry.Error)
	}
	ts := now()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO generation_logs (project_id, track_number, event, duration_ms, model, error, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ProjectID, track, entry.Event, duration, mdl, errText, ts,
	)
	if err != nil {
		return fmt.Errorf("append generation log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	entry.CreatedAt = parseTimeString(ts)
	return nil
}

// ListLogs returns the generation log of a project in insertion order.
func (s *Store) ListLogs(ctx context.Context, projectID string) ([]*model.GenerationLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, track_number, event, duration_ms, model, error, created_at
         FROM generation_logs WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list generation logs: %w", err)
	}
	defer rows.Close()

	var entries []*model.GenerationLog
	for rows.Next() {
		var (
			e          model.GenerationLog
			track      sql.NullInt64
			duration   sql.NullInt64
			mdl        sql.NullString
			errText    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &track, &e.Event, &duration, &mdl, &errText, &createdRaw); err != nil {
			return nil, err
		}
		if track.Valid {
			n := int(track.Int64)
			e.TrackNumber = &n
		}
		if duration.Valid {
			d := duration.Int64
			e.DurationMs = &d
		}
		e.Model = stringPtr(mdl)
		e.Error = stringPtr(errText)
		e.CreatedAt = parseTimeString(createdRaw)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
