package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
)

// CallbackRequest is one raw delivery to the callback endpoint
type CallbackRequest struct {
	ProjectID   string
	TrackNumber string
	Secret      string
	Body        []byte
}

// CallbackService applies provider results to tracks and triggers finalization
type CallbackService struct {
	store     *store.Store
	finalizer *Finalizer
	validator *validator.Validate
	notifier  Notifier
	journal   journal
	opts      Options
}

func NewCallbackService(st *store.Store, finalizer *Finalizer, v *validator.Validate, notifier Notifier, opts Options) *CallbackService {
	if v == nil {
		v = validator.New()
	}
	return &CallbackService{
		store:     st,
		finalizer: finalizer,
		validator: v,
		notifier:  notifierOrNoop(notifier),
		journal:   journal{store: st},
		opts:      opts.withDefaults(),
	}
}

// Handle authenticates, parses and routes one callback delivery.
func (s *CallbackService) Handle(ctx context.Context, req *CallbackRequest) error {
	const op = "callback"

	// Nothing is read or written before the secret matches.
	if s.opts.CallbackSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.opts.CallbackSecret)) != 1 {
		return apperr.Wrap(apperr.ErrUnauthorized, op, "invalid callback secret", nil)
	}

	if _, err := uuid.Parse(req.ProjectID); err != nil {
		return apperr.Validation(op, "invalid projectId")
	}
	trackNumber, err := strconv.Atoi(req.TrackNumber)
	if err != nil || !s.opts.validTrack(trackNumber) {
		return apperr.Validation(op, "invalid trackNumber")
	}

	env, err := model.ParseSunoCallback(req.Body)
	if err != nil {
		return apperr.Wrap(apperr.ErrValidation, op, "unparseable body", err)
	}
	event := env.ToEvent()

	slog.Info("callback received",
		"project_id", req.ProjectID, "track", trackNumber, "phase", event.Phase, "task_id", event.ProviderTaskID)

	switch event.Phase {
	case model.CallbackPhaseText:
		s.journal.record(ctx, logEntry{projectID: req.ProjectID, track: trackNumber, event: model.EventCallbackText})
		return nil
	case model.CallbackPhaseFirst:
		s.journal.record(ctx, logEntry{projectID: req.ProjectID, track: trackNumber, event: model.EventCallbackFirst})
		return nil
	case model.CallbackPhaseComplete, model.CallbackPhaseError:
		return s.ApplyResult(ctx, req.ProjectID, trackNumber, event)
	default:
		s.journal.record(ctx, logEntry{
			projectID: req.ProjectID,
			track:     trackNumber,
			event:     model.EventCallbackUnknown,
			message:   fmt.Sprintf("unknown phase %q", event.Phase),
		})
		return nil
	}
}

// ApplyResult records a terminal provider result. Webhook and polling deliveries share it.
func (s *CallbackService) ApplyResult(ctx context.Context, projectID string, trackNumber int, event model.CallbackEvent) error {
	switch event.Phase {
	case model.CallbackPhaseComplete:
		if err := s.applyComplete(ctx, projectID, trackNumber, event); err != nil {
			return err
		}
	case model.CallbackPhaseError:
		if err := s.applyError(ctx, projectID, trackNumber, event); err != nil {
			return err
		}
	default:
		return apperr.Validation("apply result", fmt.Sprintf("phase %q is not terminal", event.Phase))
	}

	if _, err := s.finalizer.MaybeFinalize(ctx, projectID); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

func (s *CallbackService) applyComplete(ctx context.Context, projectID string, trackNumber int, event model.CallbackEvent) error {
	const op = "callback complete"

	best, ok := model.BestVariant(event.Variants)
	if !ok {
		return apperr.Validation(op, "no variants")
	}
	if err := s.validator.Struct(&best); err != nil {
		return apperr.Wrap(apperr.ErrValidation, op, "invalid variant", err)
	}

	applied, err := s.store.CompleteTrack(ctx, projectID, trackNumber, event.ProviderTaskID, model.TrackAsset{
		ExternalID:      best.ID,
		AudioURL:        best.AudioURL,
		CoverURL:        best.ImageURL,
		DurationSeconds: best.DurationSeconds,
	})
	if err != nil {
		return err
	}
	if !applied {
		s.journal.record(ctx, logEntry{projectID: projectID, track: trackNumber, event: model.EventCallbackDuplicate})
		return nil
	}

	s.journal.record(ctx, logEntry{projectID: projectID, track: trackNumber, event: model.EventCallbackComplete})
	s.notifier.TrackStatus(projectID, trackNumber, model.TrackStatusComplete, best.AudioURL)

	if best.ImageURL != "" {
		if _, err := s.store.SetProjectCoverIfEmpty(ctx, projectID, best.ImageURL); err != nil {
			return err
		}
		if _, err := s.store.SetAlbumCoverIfEmpty(ctx, projectID, best.ImageURL); err != nil {
			return err
		}
	}
	return nil
}

func (s *CallbackService) applyError(ctx context.Context, projectID string, trackNumber int, event model.CallbackEvent) error {
	msg := event.ErrorMessage
	if msg == "" {
		msg = "music generation failed"
	}

	applied, err := s.store.FailTrack(ctx, projectID, trackNumber, model.TrackStatusGeneratingAudio, event.ProviderTaskID, truncateMessage(msg))
	if err != nil {
		return err
	}
	if !applied {
		s.journal.record(ctx, logEntry{projectID: projectID, track: trackNumber, event: model.EventCallbackDuplicate, message: msg})
		return nil
	}

	s.journal.record(ctx, logEntry{projectID: projectID, track: trackNumber, event: model.EventCallbackError, message: msg})
	s.notifier.TrackStatus(projectID, trackNumber, model.TrackStatusFailed, "")
	s.notifier.BroadcastError(projectID, model.EventCallbackError, fmt.Sprintf("track %d: %s", trackNumber, msg))
	slog.Warn("track failed by provider", "project_id", projectID, "track", trackNumber, "task_id", event.ProviderTaskID, "error", msg)
	return nil
}
