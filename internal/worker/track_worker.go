package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/model"
)

// TrackGenerator is the part of the track service the worker drives
type TrackGenerator interface {
	GenerateTrackPolling(ctx context.Context, projectID string, trackNumber int) (string, error)
}

// TrackWorker processes track:generate tasks queued by batch mode
type TrackWorker struct {
	tracks TrackGenerator
}

// NewTrackWorker creates a new track worker
func NewTrackWorker(tracks TrackGenerator) *TrackWorker {
	return &TrackWorker{tracks: tracks}
}

// ProcessTask handles track generation
func (w *TrackWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.TrackTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal track payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("processing track task", "project_id", payload.ProjectID, "track", payload.TrackNumber)

	taskID, err := w.tracks.GenerateTrackPolling(ctx, payload.ProjectID, payload.TrackNumber)
	if err != nil {
		if permanent(err) {
			slog.Info("track task skipped", "project_id", payload.ProjectID, "track", payload.TrackNumber, "reason", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	slog.Info("track task submitted", "project_id", payload.ProjectID, "track", payload.TrackNumber, "task_id", taskID)
	return nil
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, apperr.ErrConflict) ||
		errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrNotFound)
}
