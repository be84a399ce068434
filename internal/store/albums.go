package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/makeasinger/showrunner/internal/model"
)

const albumColumns = "project_id, share_id, title, synopsis, cast_json, setting_text, cover_url, total_duration_seconds, completed_tracks, created_at"

// CreateAlbum inserts the album of a project. A project keeps its first album;
// the stored album is returned either way.
func (s *Store) CreateAlbum(ctx context.Context, a *model.Album) (*model.Album, error) {
	if a == nil || a.ProjectID == "" || a.ShareID == "" {
		return nil, errors.New("album project id and share id are required")
	}
	var cast any
	if len(a.Cast) > 0 {
		cast = string(a.Cast)
	}
	var cover any
	if a.CoverURL != nil {
		cover = nullableString(*a.CoverURL)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO albums (`+albumColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(project_id) DO NOTHING`,
		a.ProjectID,
		a.ShareID,
		a.Title,
		nullableString(a.Synopsis),
		cast,
		nullableString(a.SettingText),
		cover,
		a.TotalDurationSeconds,
		a.CompletedTracks,
		now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert album: %w", err)
	}
	return s.GetAlbumByProject(ctx, a.ProjectID)
}

// GetAlbumByProject fetches the album of a project. It returns nil, nil when none exists.
func (s *Store) GetAlbumByProject(ctx context.Context, projectID string) (*model.Album, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+albumColumns+` FROM albums WHERE project_id = ?`, projectID)
	a, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get album: %w", err)
	}
	return a, nil
}

// GetAlbumByShareID fetches an album by its public share id.
func (s *Store) GetAlbumByShareID(ctx context.Context, shareID string) (*model.Album, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+albumColumns+` FROM albums WHERE share_id = ?`, shareID)
	a, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get album by share id: %w", err)
	}
	return a, nil
}

// SetAlbumCoverIfEmpty writes the cover url only when none is stored yet.
func (s *Store) SetAlbumCoverIfEmpty(ctx context.Context, projectID, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	ok, err := s.execConditional(ctx,
		`UPDATE albums SET cover_url = ?
         WHERE project_id = ? AND (cover_url IS NULL OR cover_url = '')`,
		url, projectID,
	)
	if err != nil {
		return false, fmt.Errorf("set album cover: %w", err)
	}
	return ok, nil
}

// UpdateAlbumSummary records the totals computed during finalization.
func (s *Store) UpdateAlbumSummary(ctx context.Context, projectID string, totalDuration float64, completed int) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE albums SET total_duration_seconds = ?, completed_tracks = ? WHERE project_id = ?`,
		totalDuration, completed, projectID,
	)
	if err != nil {
		return fmt.Errorf("update album summary: %w", err)
	}
	return nil
}

func scanAlbum(scanner interface{ Scan(dest ...any) error }) (*model.Album, error) {
	var (
		a          model.Album
		synopsis   sql.NullString
		cast       sql.NullString
		setting    sql.NullString
		coverURL   sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&a.ProjectID,
		&a.ShareID,
		&a.Title,
		&synopsis,
		&cast,
		&setting,
		&coverURL,
		&a.TotalDurationSeconds,
		&a.CompletedTracks,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	a.Synopsis = synopsis.String
	if cast.Valid && cast.String != "" {
		a.Cast = json.RawMessage(cast.String)
	}
	a.SettingText = setting.String
	a.CoverURL = stringPtr(coverURL)
	a.CreatedAt = parseTimeString(createdRaw)
	return &a, nil
}
