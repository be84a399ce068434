package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/makeasinger/showrunner/internal/model"
)

const trackColumns = "project_id, track_number, status, title, lyrics, style, external_task_id, audio_url, cover_url, duration_seconds, retry_count, error_message, created_at, updated_at"

// CreatePlaceholderTracks inserts tracks 1..count in pending. Existing rows are left untouched.
// titles[i] names track i+1 when present.
func (s *Store) CreatePlaceholderTracks(ctx context.Context, projectID string, count int, titles []string) (int, error) {
	if count <= 0 {
		return 0, errors.New("track count must be positive")
	}
	ts := now()
	created := 0
	for n := 1; n <= count; n++ {
		title := ""
		if n-1 < len(titles) {
			title = titles[n-1]
		}
		ok, err := s.execConditional(ctx,
			`INSERT OR IGNORE INTO tracks (project_id, track_number, status, title, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			projectID, n, model.TrackStatusPending, nullableString(title), ts, ts,
		)
		if err != nil {
			return created, fmt.Errorf("insert placeholder track %d: %w", n, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// GetTrack fetches one track. It returns nil, nil when none exists.
func (s *Store) GetTrack(ctx context.Context, projectID string, trackNumber int) (*model.Track, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE project_id = ? AND track_number = ?`,
		projectID, trackNumber,
	)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

// ListTracks returns all tracks of a project ordered by track number.
func (s *Store) ListTracks(ctx context.Context, projectID string) ([]*model.Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE project_id = ? ORDER BY track_number`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// CompareAndSetTrackStatus moves a track to next only if its status is one of expected.
// Leaving failed counts as a retry and clears the previous error. Entering
// generating_audio retires the previous external task id: it moves to the
// superseded list so late deliveries for it are refused, and the new submission
// owns the empty slot.
func (s *Store) CompareAndSetTrackStatus(ctx context.Context, projectID string, trackNumber int, next model.TrackStatus, expected ...model.TrackStatus) (bool, error) {
	if len(expected) == 0 {
		return false, errors.New("expected status is required")
	}
	set := `status = ?, updated_at = ?,
             retry_count = retry_count + CASE WHEN status = 'failed' THEN 1 ELSE 0 END,
             error_message = CASE WHEN status = 'failed' THEN NULL ELSE error_message END`
	if next == model.TrackStatusGeneratingAudio {
		set += `, superseded_task_ids = CASE WHEN external_task_id IS NULL THEN superseded_task_ids
                 ELSE superseded_task_ids || external_task_id || ',' END,
             external_task_id = NULL`
	}
	args := []any{next, now(), projectID, trackNumber}
	for _, st := range expected {
		args = append(args, st)
	}
	ok, err := s.execConditional(ctx,
		`UPDATE tracks SET `+set+`
         WHERE project_id = ? AND track_number = ? AND status IN (`+makePlaceholders(len(expected))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update track status: %w", err)
	}
	return ok, nil
}

// SaveLyrics persists generated lyrics and style, generating_lyrics to lyrics_complete.
func (s *Store) SaveLyrics(ctx context.Context, projectID string, trackNumber int, lyrics, style string) (bool, error) {
	ok, err := s.execConditional(ctx,
		`UPDATE tracks SET lyrics = ?, style = ?, status = ?, updated_at = ?
         WHERE project_id = ? AND track_number = ? AND status = ?`,
		lyrics, nullableString(style), model.TrackStatusLyricsComplete, now(),
		projectID, trackNumber, model.TrackStatusGeneratingLyrics,
	)
	if err != nil {
		return false, fmt.Errorf("save lyrics: %w", err)
	}
	return ok, nil
}

// SetLyrics stores user-supplied lyrics, pending, lyrics_complete or failed to lyrics_complete.
func (s *Store) SetLyrics(ctx context.Context, projectID string, trackNumber int, lyrics, style string) (bool, error) {
	ok, err := s.execConditional(ctx,
		`UPDATE tracks SET lyrics = ?, style = COALESCE(?, style), status = ?, updated_at = ?,
             retry_count = retry_count + CASE WHEN status = 'failed' THEN 1 ELSE 0 END,
             error_message = NULL
         WHERE project_id = ? AND track_number = ? AND status IN (?, ?, ?)`,
		lyrics, nullableString(style), model.TrackStatusLyricsComplete, now(),
		projectID, trackNumber,
		model.TrackStatusPending, model.TrackStatusLyricsComplete, model.TrackStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("set lyrics: %w", err)
	}
	return ok, nil
}

// SetTrackTaskID records the provider task id of the submission that claimed generating_audio.
func (s *Store) SetTrackTaskID(ctx context.Context, projectID string, trackNumber int, taskID string) (bool, error) {
	ok, err := s.execConditional(ctx,
		`UPDATE tracks SET external_task_id = ?, updated_at = ?
         WHERE project_id = ? AND track_number = ? AND status = ? AND external_task_id IS NULL`,
		taskID, now(), projectID, trackNumber, model.TrackStatusGeneratingAudio,
	)
	if err != nil {
		return false, fmt.Errorf("set track task id: %w", err)
	}
	return ok, nil
}

// deliveryGuard admits a provider delivery for taskID. An empty taskID is an
// internal transition. Otherwise the id must equal the stored one, or, while the
// claiming submission has not stored its id yet, must not be a superseded one.
const deliveryGuard = `(? = '' OR external_task_id = ?
              OR (external_task_id IS NULL AND instr(superseded_task_ids, ',' || ? || ',') = 0))`

// CompleteTrack writes the chosen asset and moves generating_audio to complete.
func (s *Store) CompleteTrack(ctx context.Context, projectID string, trackNumber int, taskID string, asset model.TrackAsset) (bool, error) {
	ok, err := s.execConditional(ctx,
		`UPDATE tracks SET status = ?, audio_url = ?, cover_url = ?, duration_seconds = ?,
             external_task_id = COALESCE(external_task_id, ?), error_message = NULL, updated_at = ?
         WHERE project_id = ? AND track_number = ? AND status = ?
           AND `+deliveryGuard,
		model.TrackStatusComplete,
		nullableString(asset.AudioURL),
		nullableString(asset.CoverURL),
		asset.DurationSeconds,
		nullableString(taskID),
		now(),
		projectID, trackNumber, model.TrackStatusGeneratingAudio,
		taskID, taskID, taskID,
	)
	if err != nil {
		return false, fmt.Errorf("complete track: %w", err)
	}
	return ok, nil
}

// FailTrack moves a track from one of the in-flight statuses to failed. A
// non-empty taskID passes the same guard as CompleteTrack.
func (s *Store) FailTrack(ctx context.Context, projectID string, trackNumber int, from model.TrackStatus, taskID, message string) (bool, error) {
	ok, err := s.execConditional(ctx,
		`UPDATE tracks SET status = ?, error_message = ?, updated_at = ?
         WHERE project_id = ? AND track_number = ? AND status = ?
           AND `+deliveryGuard,
		model.TrackStatusFailed, nullableString(message), now(),
		projectID, trackNumber, from,
		taskID, taskID, taskID,
	)
	if err != nil {
		return false, fmt.Errorf("fail track: %w", err)
	}
	return ok, nil
}

func scanTrack(scanner interface{ Scan(dest ...any) error }) (*model.Track, error) {
	var (
		t          model.Track
		title      sql.NullString
		lyrics     sql.NullString
		style      sql.NullString
		taskID     sql.NullString
		audioURL   sql.NullString
		coverURL   sql.NullString
		errMessage sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&t.ProjectID,
		&t.TrackNumber,
		&t.Status,
		&title,
		&lyrics,
		&style,
		&taskID,
		&audioURL,
		&coverURL,
		&t.DurationSeconds,
		&t.RetryCount,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	t.Title = title.String
	t.Lyrics = stringPtr(lyrics)
	t.Style = stringPtr(style)
	t.ExternalTaskID = stringPtr(taskID)
	t.AudioURL = stringPtr(audioURL)
	t.CoverURL = stringPtr(coverURL)
	t.ErrorMessage = stringPtr(errMessage)
	t.CreatedAt = parseTimeString(createdRaw)
	t.UpdatedAt = parseTimeString(updatedRaw)
	return &t, nil
}
