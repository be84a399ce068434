package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/showrunner/internal/client"
	"github.com/makeasinger/showrunner/internal/model"
)

// MusicPoller waits for a submitted music task to finish
type MusicPoller interface {
	PollTask(ctx context.Context, taskID string, interval, maxWait time.Duration) (*client.MusicTaskStatus, error)
}

// ResultApplier records a terminal provider result for a track
type ResultApplier interface {
	ApplyResult(ctx context.Context, projectID string, trackNumber int, event model.CallbackEvent) error
}

// PollWorker processes track:poll tasks for submissions made without a callback URL
type PollWorker struct {
	poller   MusicPoller
	results  ResultApplier
	interval time.Duration
	maxWait  time.Duration
}

// NewPollWorker creates a new poll worker
func NewPollWorker(poller MusicPoller, results ResultApplier, interval, maxWait time.Duration) *PollWorker {
	return &PollWorker{
		poller:   poller,
		results:  results,
		interval: interval,
		maxWait:  maxWait,
	}
}

// ProcessTask polls the provider and applies the final result
func (w *PollWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.PollTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal poll payload: %v: %w", err, asynq.SkipRetry)
	}

	status, err := w.poller.PollTask(ctx, payload.TaskID, w.interval, w.maxWait)
	if errors.Is(err, client.ErrPollTimeout) {
		status = &client.MusicTaskStatus{TaskID: payload.TaskID, Status: "TIMEOUT", ErrorMessage: err.Error()}
	} else if err != nil {
		return err
	}

	event := toEvent(status)
	slog.Info("poll finished", "project_id", payload.ProjectID, "track", payload.TrackNumber,
		"task_id", payload.TaskID, "status", status.Status, "phase", event.Phase)

	if err := w.results.ApplyResult(ctx, payload.ProjectID, payload.TrackNumber, event); err != nil {
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func toEvent(status *client.MusicTaskStatus) model.CallbackEvent {
	event := model.CallbackEvent{ProviderTaskID: status.TaskID}
	if !status.Done() {
		event.Phase = model.CallbackPhaseError
		event.ErrorMessage = status.ErrorMessage
		if event.ErrorMessage == "" {
			event.ErrorMessage = "music generation ended with status " + status.Status
		}
		return event
	}

	event.Phase = model.CallbackPhaseComplete
	for _, v := range status.Variants {
		event.Variants = append(event.Variants, model.Variant{
			ID:              v.ID,
			AudioURL:        v.AudioURL,
			ImageURL:        v.ImageURL,
			DurationSeconds: v.DurationSeconds,
			Title:           v.Title,
		})
	}
	return event
}
