package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/client"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
)

const (
	lyricsTemperature = 0.9
	lyricsMaxTokens   = 1200
	maxErrorMessage   = 500
)

// TrackService generates lyrics for a track and submits it for audio generation
type TrackService struct {
	store    *store.Store
	text     client.TextGenerator
	music     client.MusicGenerator
	prompts   *PromptBuilder
	enqueuer  TaskEnqueuer
	finalizer *Finalizer
	notifier  Notifier
	journal   journal
	opts      Options
}

// NewTrackService creates a track service. enqueuer may be nil when batch mode
// is disabled; a nil finalizer gets one built on st.
func NewTrackService(st *store.Store, text client.TextGenerator, music client.MusicGenerator, enqueuer TaskEnqueuer, finalizer *Finalizer, notifier Notifier, opts Options) *TrackService {
	opts = opts.withDefaults()
	if finalizer == nil {
		finalizer = NewFinalizer(st, notifier, opts)
	}
	return &TrackService{
		store:     st,
		text:      text,
		music:     music,
		prompts:   NewPromptBuilder(opts.TrackCount),
		enqueuer:  enqueuer,
		finalizer: finalizer,
		notifier:  notifierOrNoop(notifier),
		journal:   journal{store: st},
		opts:      opts,
	}
}

// GenerateTrack writes lyrics when missing and submits the track with a callback URL.
// It returns the provider task id as soon as the submission is accepted.
func (s *TrackService) GenerateTrack(ctx context.Context, projectID string, trackNumber int) (string, error) {
	delivery := model.DeliveryWebhook
	if s.opts.CallbackBaseURL == "" && s.enqueuer != nil {
		delivery = model.DeliveryPolling
	}
	return s.generate(ctx, projectID, trackNumber, delivery)
}

// GenerateTrackPolling submits without a callback URL and schedules a poll task instead.
func (s *TrackService) GenerateTrackPolling(ctx context.Context, projectID string, trackNumber int) (string, error) {
	return s.generate(ctx, projectID, trackNumber, model.DeliveryPolling)
}

func (s *TrackService) generate(ctx context.Context, projectID string, trackNumber int, delivery model.DeliveryMode) (string, error) {
	const op = "generate track"

	if !s.opts.validTrack(trackNumber) {
		return "", apperr.Validation(op, fmt.Sprintf("track number must be between 1 and %d", s.opts.TrackCount))
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", apperr.NotFound(op, "project not found")
	}
	if project.Status == model.ProjectStatusFailed {
		return "", apperr.Conflict(op, "project has failed")
	}
	concept, err := project.ParseConcept()
	if err != nil {
		return "", fmt.Errorf("decode concept: %w", err)
	}
	if concept == nil || !project.Status.HasConcept() {
		return "", apperr.Conflict(op, "project has no concept yet")
	}

	track, err := s.store.GetTrack(ctx, projectID, trackNumber)
	if err != nil {
		return "", err
	}
	if track == nil {
		return "", apperr.NotFound(op, "track not found")
	}
	switch track.Status {
	case model.TrackStatusGeneratingAudio, model.TrackStatusComplete:
		return "", apperr.Conflict(op, "track already submitted")
	case model.TrackStatusGeneratingLyrics:
		return "", apperr.Conflict(op, "lyrics are being written")
	}

	title := s.prompts.TrackTitle(project, concept, track)
	lyrics := ""
	if track.HasLyrics() {
		lyrics = *track.Lyrics
	} else {
		lyrics, err = s.writeLyrics(ctx, project, concept, track, title)
		if err != nil {
			return "", err
		}
	}

	// Claim the submission. From here on this caller owns the track until a result arrives.
	claimed, err := s.store.CompareAndSetTrackStatus(ctx, projectID, trackNumber,
		model.TrackStatusGeneratingAudio, model.TrackStatusLyricsComplete, model.TrackStatusFailed)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", apperr.Conflict(op, "track already submitted")
	}
	s.notifier.TrackStatus(projectID, trackNumber, model.TrackStatusGeneratingAudio, "")

	req := &client.SubmitMusicRequest{
		Lyrics: lyrics,
		Title:  title,
		Styles: s.styles(project, concept, track),
	}
	if delivery == model.DeliveryWebhook {
		req.CallbackURL = s.callbackURL(projectID, trackNumber)
	}

	started := time.Now()
	taskID, err := s.music.Submit(ctx, req)
	if err != nil {
		s.failTrack(ctx, projectID, trackNumber, model.TrackStatusGeneratingAudio, model.EventAudioSubmitFailed, err)
		return "", upstream(op, err)
	}

	if ok, err := s.store.SetTrackTaskID(ctx, projectID, trackNumber, taskID); err != nil {
		slog.Error("failed to store task id", "project_id", projectID, "track", trackNumber, "task_id", taskID, "error", err)
	} else if !ok {
		// A webhook already completed or failed the track.
		slog.Info("track moved on before task id was stored", "project_id", projectID, "track", trackNumber, "task_id", taskID)
	}
	s.journal.record(ctx, logEntry{
		projectID: projectID,
		track:     trackNumber,
		event:     model.EventAudioSubmitted,
		started:   started,
	})
	slog.Info("track submitted", "project_id", projectID, "track", trackNumber, "task_id", taskID, "delivery", delivery)

	if delivery == model.DeliveryPolling {
		if err := s.enqueuePoll(projectID, trackNumber, taskID); err != nil {
			slog.Error("failed to enqueue poll task", "project_id", projectID, "track", trackNumber, "task_id", taskID, "error", err)
		}
	}

	return taskID, nil
}

func (s *TrackService) writeLyrics(ctx context.Context, project *model.Project, concept *model.Concept, track *model.Track, title string) (string, error) {
	const op = "generate lyrics"

	claimed, err := s.store.CompareAndSetTrackStatus(ctx, project.ID, track.TrackNumber,
		model.TrackStatusGeneratingLyrics, model.TrackStatusPending, model.TrackStatusLyricsComplete, model.TrackStatusFailed)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", apperr.Conflict(op, "track is already in progress")
	}
	s.notifier.TrackStatus(project.ID, track.TrackNumber, model.TrackStatusGeneratingLyrics, "")
	s.journal.record(ctx, logEntry{projectID: project.ID, track: track.TrackNumber, event: model.EventLyricsStarted})

	started := time.Now()
	lyrics, err := s.text.Generate(ctx, &client.TextRequest{
		System:      s.prompts.LyricsSystem(),
		Prompt:      s.prompts.LyricsPrompt(project, concept, track.TrackNumber, title),
		Temperature: lyricsTemperature,
		MaxTokens:   lyricsMaxTokens,
	})
	if err == nil && lyrics == "" {
		err = apperr.Wrap(apperr.ErrParse, op, "empty lyrics", nil)
	}
	if err != nil {
		s.failTrack(ctx, project.ID, track.TrackNumber, model.TrackStatusGeneratingLyrics, model.EventLyricsFailed, err)
		return "", upstream(op, err)
	}

	style := s.prompts.Styles(project, concept)[0]
	saved, err := s.store.SaveLyrics(ctx, project.ID, track.TrackNumber, lyrics, style)
	if err != nil {
		return "", err
	}
	if !saved {
		return "", apperr.Conflict(op, "track changed while lyrics were written")
	}
	s.journal.record(ctx, logEntry{
		projectID: project.ID,
		track:     track.TrackNumber,
		event:     model.EventLyricsComplete,
		started:   started,
		model:     s.text.Model(),
	})
	s.notifier.TrackStatus(project.ID, track.TrackNumber, model.TrackStatusLyricsComplete, "")
	return lyrics, nil
}

// SetLyrics stores user-supplied lyrics so the next submission skips lyric generation.
func (s *TrackService) SetLyrics(ctx context.Context, projectID string, trackNumber int, req *model.SetLyricsRequest) (*model.Track, error) {
	const op = "set lyrics"

	if !s.opts.validTrack(trackNumber) {
		return nil, apperr.Validation(op, fmt.Sprintf("track number must be between 1 and %d", s.opts.TrackCount))
	}
	if req == nil || req.Lyrics == "" {
		return nil, apperr.Validation(op, "lyrics are required")
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound(op, "project not found")
	}
	if project.Status.IsTerminal() {
		return nil, apperr.Conflict(op, "project is "+string(project.Status))
	}

	ok, err := s.store.SetLyrics(ctx, projectID, trackNumber, req.Lyrics, req.Style)
	if err != nil {
		return nil, err
	}
	if !ok {
		track, err := s.store.GetTrack(ctx, projectID, trackNumber)
		if err != nil {
			return nil, err
		}
		if track == nil {
			return nil, apperr.NotFound(op, "track not found")
		}
		return nil, apperr.Conflict(op, "track is "+string(track.Status))
	}

	s.journal.record(ctx, logEntry{projectID: projectID, track: trackNumber, event: model.EventLyricsSupplied})
	s.notifier.TrackStatus(projectID, trackNumber, model.TrackStatusLyricsComplete, "")
	return s.store.GetTrack(ctx, projectID, trackNumber)
}

func (s *TrackService) styles(project *model.Project, concept *model.Concept, track *model.Track) []string {
	candidates := s.prompts.Styles(project, concept)
	if track.Style != nil && *track.Style != "" {
		candidates = append([]string{*track.Style}, candidates...)
	}
	return client.StyleCandidates(candidates)
}

func (s *TrackService) callbackURL(projectID string, trackNumber int) string {
	q := url.Values{}
	q.Set("projectId", projectID)
	q.Set("trackNumber", strconv.Itoa(trackNumber))
	q.Set("secret", s.opts.CallbackSecret)
	return s.opts.CallbackBaseURL + "/callbacks/suno?" + q.Encode()
}

// failTrack records the failure and runs the finalization gate, since a failed
// track may be the last one the project was waiting for.
func (s *TrackService) failTrack(ctx context.Context, projectID string, trackNumber int, from model.TrackStatus, event string, cause error) {
	msg := truncateMessage(cause.Error())
	ctx = context.WithoutCancel(ctx)
	failed, err := s.store.FailTrack(ctx, projectID, trackNumber, from, "", msg)
	if err != nil {
		slog.Error("failed to mark track failed", "project_id", projectID, "track", trackNumber, "error", err)
		return
	}
	s.journal.record(ctx, logEntry{projectID: projectID, track: trackNumber, event: event, err: cause})
	if !failed {
		// A webhook already settled the track.
		return
	}
	s.notifier.TrackStatus(projectID, trackNumber, model.TrackStatusFailed, "")
	s.notifier.BroadcastError(projectID, event, fmt.Sprintf("track %d: %s", trackNumber, msg))
	slog.Warn("track failed", "project_id", projectID, "track", trackNumber, "event", event, "error", cause)

	if _, err := s.finalizer.MaybeFinalize(ctx, projectID); err != nil {
		slog.Error("finalization after track failure", "project_id", projectID, "track", trackNumber, "error", err)
	}
}

// upstream tags err as a provider failure unless a client already did.
func upstream(op string, err error) error {
	if errors.Is(err, apperr.ErrUpstream) {
		return err
	}
	return apperr.Upstream(op, err)
}

func (s *TrackService) enqueuePoll(projectID string, trackNumber int, taskID string) error {
	payload, err := json.Marshal(&model.PollTaskPayload{
		ProjectID:   projectID,
		TrackNumber: trackNumber,
		TaskID:      taskID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.enqueuer.Enqueue(asynq.NewTask(model.TaskTypeTrackPoll, payload),
		asynq.Queue(QueueTracks),
		asynq.MaxRetry(2),
		asynq.Timeout(s.opts.PollMaxWait+time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func truncateMessage(s string) string {
	if len(s) <= maxErrorMessage {
		return s
	}
	return s[:maxErrorMessage]
}
