package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
)

// BatchService queues the remaining tracks of a show for background generation
type BatchService struct {
	store    *store.Store
	enqueuer TaskEnqueuer
	opts     Options
}

func NewBatchService(st *store.Store, enqueuer TaskEnqueuer, opts Options) *BatchService {
	return &BatchService{
		store:    st,
		enqueuer: enqueuer,
		opts:     opts.withDefaults(),
	}
}

// EnqueueRemaining enqueues a track:generate task for every track that is pending,
// lyrics_complete or failed. A track already queued for the same retry is skipped.
func (s *BatchService) EnqueueRemaining(ctx context.Context, projectID string) (*model.BatchResponse, error) {
	const op = "enqueue batch"

	if s.enqueuer == nil {
		return nil, apperr.Conflict(op, "batch mode is not configured")
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound(op, "project not found")
	}
	if project.Status != model.ProjectStatusGeneratingMusic {
		return nil, apperr.Conflict(op, "project is "+string(project.Status))
	}

	tracks, err := s.store.ListTracks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	resp := &model.BatchResponse{ProjectID: projectID, Enqueued: []int{}}
	for _, t := range tracks {
		switch t.Status {
		case model.TrackStatusPending, model.TrackStatusLyricsComplete, model.TrackStatusFailed:
		default:
			resp.Skipped = append(resp.Skipped, t.TrackNumber)
			continue
		}

		taskID := fmt.Sprintf("track:%s:%d:%d", projectID, t.TrackNumber, t.RetryCount)
		info, err := s.enqueue(projectID, t.TrackNumber, taskID)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			resp.Skipped = append(resp.Skipped, t.TrackNumber)
			continue
		}
		if err != nil {
			return nil, err
		}
		resp.Enqueued = append(resp.Enqueued, t.TrackNumber)
		resp.TaskIDs = append(resp.TaskIDs, info.ID)
	}

	slog.Info("batch enqueued", "project_id", projectID, "enqueued", len(resp.Enqueued), "skipped", len(resp.Skipped))
	return resp, nil
}

func (s *BatchService) enqueue(projectID string, trackNumber int, taskID string) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(&model.TrackTaskPayload{
		ProjectID:   projectID,
		TrackNumber: trackNumber,
		Delivery:    model.DeliveryPolling,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	info, err := s.enqueuer.Enqueue(asynq.NewTask(model.TaskTypeTrackGenerate, payload),
		asynq.TaskID(taskID),
		asynq.Queue(QueueTracks),
		asynq.MaxRetry(1),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info, nil
}
