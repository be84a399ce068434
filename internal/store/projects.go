package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/makeasinger/showrunner/internal/model"
)

const projectColumns = "id, user_id, idea, musical_type, status, concept, chosen_title_index, cover_url, error_message, created_at, updated_at"

// CreateProject inserts a project in its current status.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	if p == nil || p.ID == "" {
		return errors.New("project id is required")
	}
	ts := now()
	var concept any
	if len(p.Concept) > 0 {
		concept = string(p.Concept)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		nullableString(p.UserID),
		p.Idea,
		p.MusicalType,
		p.Status,
		concept,
		p.ChosenTitleIndex,
		nil,
		nil,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	p.CreatedAt = parseTimeString(ts)
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetProject fetches a project by id. It returns nil, nil when none exists.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns projects filtered by status (all when none given), newest first.
func (s *Store) ListProjects(ctx context.Context, limit int, statuses ...model.ProjectStatus) ([]*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CompareAndSetProjectStatus moves a project to next only if its status is one of expected.
func (s *Store) CompareAndSetProjectStatus(ctx context.Context, id string, next model.ProjectStatus, expected ...model.ProjectStatus) (bool, error) {
	if len(expected) == 0 {
		return false, errors.New("expected status is required")
	}
	args := []any{next, now(), id}
	for _, st := range expected {
		args = append(args, st)
	}
	ok, err := s.execConditional(ctx,
		`UPDATE projects SET status = ?, updated_at = ?
         WHERE id = ? AND status IN (`+makePlaceholders(len(expected))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update project status: %w", err)
	}
	return ok, nil
}

// SaveConcept stores the enriched concept and leaves enriching for next.
func (s *Store) SaveConcept(ctx context.Context, id string, concept json.RawMessage, next model.ProjectStatus) (bool, error) {
	ok, err := s.execConditional(ctx,
		`UPDATE projects SET concept = ?, status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(concept), next, now(), id, model.ProjectStatusEnriching,
	)
	if err != nil {
		return false, fmt.Errorf("save concept: %w", err)
	}
	return ok, nil
}

// ChooseTitle records the chosen title and moves choosing to generating_music in one write.
func (s *Store) ChooseTitle(ctx context.Context, id string, index int) (bool, error) {
	ok, err := s.execConditional(ctx,
		`UPDATE projects SET chosen_title_index = ?, status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		index, model.ProjectStatusGeneratingMusic, now(), id, model.ProjectStatusChoosing,
	)
	if err != nil {
		return false, fmt.Errorf("choose title: %w", err)
	}
	return ok, nil
}

// SetProjectCoverIfEmpty writes the cover url only when none is stored yet.
func (s *Store) SetProjectCoverIfEmpty(ctx context.Context, id, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	ok, err := s.execConditional(ctx,
		`UPDATE projects SET cover_url = ?, updated_at = ?
         WHERE id = ? AND (cover_url IS NULL OR cover_url = '')`,
		url, now(), id,
	)
	if err != nil {
		return false, fmt.Errorf("set project cover: %w", err)
	}
	return ok, nil
}

// MarkProjectFailed moves any non-terminal project to failed with a message.
func (s *Store) MarkProjectFailed(ctx context.Context, id, message string) (bool, error) {
	args := []any{model.ProjectStatusFailed, nullableString(message), now(), id}
	for _, st := range model.NonTerminalProjectStatuses {
		args = append(args, st)
	}
	ok, err := s.execConditional(ctx,
		`UPDATE projects SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status IN (`+makePlaceholders(len(model.NonTerminalProjectStatuses))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("mark project failed: %w", err)
	}
	return ok, nil
}

func scanProject(scanner interface{ Scan(dest ...any) error }) (*model.Project, error) {
	var (
		p          model.Project
		userID     sql.NullString
		concept    sql.NullString
		coverURL   sql.NullString
		errMessage sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&p.ID,
		&userID,
		&p.Idea,
		&p.MusicalType,
		&p.Status,
		&concept,
		&p.ChosenTitleIndex,
		&coverURL,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	p.UserID = userID.String
	if concept.Valid && concept.String != "" {
		p.Concept = json.RawMessage(concept.String)
	}
	p.CoverURL = stringPtr(coverURL)
	p.ErrorMessage = stringPtr(errMessage)
	p.CreatedAt = parseTimeString(createdRaw)
	p.UpdatedAt = parseTimeString(updatedRaw)
	return &p, nil
}
