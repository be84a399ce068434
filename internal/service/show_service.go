package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/client"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
)

const (
	conceptTemperature   = 0.8
	conceptMaxTokens     = 1500
	narrativeTemperature = 0.7
	narrativeMaxTokens   = 1200
)

// ShowService drives a project from intake to the first submitted track
type ShowService struct {
	store    *store.Store
	text     client.TextGenerator
	image    client.ImageGenerator
	tracks   *TrackService
	prompts  *PromptBuilder
	notifier Notifier
	journal  journal
	opts     Options
}

func NewShowService(st *store.Store, text client.TextGenerator, image client.ImageGenerator, tracks *TrackService, notifier Notifier, opts Options) *ShowService {
	opts = opts.withDefaults()
	return &ShowService{
		store:    st,
		text:     text,
		image:    image,
		tracks:   tracks,
		prompts:  NewPromptBuilder(opts.TrackCount),
		notifier: notifierOrNoop(notifier),
		journal:  journal{store: st},
		opts:     opts,
	}
}

// CreateProject stores a new project in intake.
func (s *ShowService) CreateProject(ctx context.Context, userID string, req *model.CreateShowRequest) (*model.Project, error) {
	const op = "create project"

	if req == nil || strings.TrimSpace(req.Idea) == "" {
		return nil, apperr.Validation(op, "idea is required")
	}
	if !req.MusicalType.IsValid() {
		return nil, apperr.Validation(op, "unknown musical type")
	}

	p := &model.Project{
		ID:          uuid.New().String(),
		UserID:      userID,
		Idea:        strings.TrimSpace(req.Idea),
		MusicalType: req.MusicalType,
		Status:      model.ProjectStatusIntake,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, p.ID)
}

// StartShow enriches the idea into a concept and, unless a title choice is needed,
// launches placeholders, cover art, narrative and the first track together.
func (s *ShowService) StartShow(ctx context.Context, projectID string) (*model.StartShowResponse, error) {
	const op = "start show"

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound(op, "project not found")
	}
	if strings.TrimSpace(project.Idea) == "" || project.MusicalType == "" {
		return nil, apperr.Validation(op, "idea and musical type are required")
	}
	if project.Status != model.ProjectStatusIntake {
		return nil, apperr.Conflict(op, "project is "+string(project.Status))
	}

	ok, err := s.store.CompareAndSetProjectStatus(ctx, projectID, model.ProjectStatusEnriching, model.ProjectStatusIntake)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict(op, "project already started")
	}
	s.notifier.ProjectStatus(projectID, model.ProjectStatusEnriching, "")
	s.journal.record(ctx, logEntry{projectID: projectID, event: model.EventConceptStarted})

	started := time.Now()
	raw, err := s.text.GenerateStructured(ctx, &client.TextRequest{
		System:      s.prompts.ConceptSystem(),
		Prompt:      s.prompts.ConceptPrompt(project),
		Temperature: conceptTemperature,
		MaxTokens:   conceptMaxTokens,
	}, ConceptSchema)
	var concept model.Concept
	if err == nil {
		if uerr := json.Unmarshal(raw, &concept); uerr != nil {
			err = apperr.Wrap(apperr.ErrParse, op, "decode concept", uerr)
		}
	}
	if err != nil {
		s.failProject(ctx, projectID, model.EventConceptFailed, err)
		return nil, apperr.Wrap(apperr.ErrUpstream, op, "concept generation failed", err)
	}
	s.journal.record(ctx, logEntry{
		projectID: projectID,
		event:     model.EventConceptComplete,
		started:   started,
		model:     s.text.Model(),
	})

	next := model.ProjectStatusGeneratingMusic
	if project.MusicalType.RequiresChoice() {
		next = model.ProjectStatusChoosing
	}
	saved, err := s.store.SaveConcept(ctx, projectID, raw, next)
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, apperr.Conflict(op, "project changed during enrichment")
	}
	s.notifier.ProjectStatus(projectID, next, "")

	if next == model.ProjectStatusChoosing {
		return &model.StartShowResponse{
			ProjectID:    projectID,
			Status:       model.ProjectStatusChoosing,
			TitleOptions: concept.TitleOptions,
		}, nil
	}

	project.Status = next
	project.Concept = raw
	return s.launch(ctx, project, &concept)
}

// ChooseTitle records the title choice and launches generation. Only one of
// several concurrent choices wins; the rest get a conflict.
func (s *ShowService) ChooseTitle(ctx context.Context, projectID string, titleIndex int) (*model.StartShowResponse, error) {
	const op = "choose title"

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound(op, "project not found")
	}
	if project.Status != model.ProjectStatusChoosing {
		return nil, apperr.Conflict(op, "project is "+string(project.Status))
	}
	concept, err := project.ParseConcept()
	if err != nil {
		return nil, fmt.Errorf("decode concept: %w", err)
	}
	if concept == nil || titleIndex < 0 || titleIndex >= len(concept.TitleOptions) {
		return nil, apperr.Validation(op, "title index out of range")
	}

	ok, err := s.store.ChooseTitle(ctx, projectID, titleIndex)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict(op, "title already chosen")
	}
	s.journal.record(ctx, logEntry{projectID: projectID, event: model.EventTitleChosen})
	s.notifier.ProjectStatus(projectID, model.ProjectStatusGeneratingMusic, "")

	project.Status = model.ProjectStatusGeneratingMusic
	project.ChosenTitleIndex = titleIndex
	return s.launch(ctx, project, concept)
}

func (s *ShowService) launch(ctx context.Context, project *model.Project, concept *model.Concept) (*model.StartShowResponse, error) {
	const op = "launch show"
	title := concept.Title(project.ChosenTitleIndex)

	created, err := s.store.CreatePlaceholderTracks(ctx, project.ID, s.opts.TrackCount, concept.SongTitles)
	if err != nil {
		return nil, err
	}
	s.journal.record(ctx, logEntry{projectID: project.ID, event: model.EventPlaceholders, message: fmt.Sprintf("%d tracks created", created)})

	var (
		wg           sync.WaitGroup
		coverURL     string
		album        *model.Album
		narrativeErr error
		firstTaskID  string
		trackErr     error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		coverURL = s.coverArt(ctx, project, concept, title)
	}()
	go func() {
		defer wg.Done()
		album, narrativeErr = s.narrative(ctx, project, concept, title)
	}()
	go func() {
		defer wg.Done()
		firstTaskID, trackErr = s.tracks.GenerateTrack(ctx, project.ID, s.opts.PrimaryTrack)
	}()
	wg.Wait()

	if narrativeErr != nil {
		s.failProject(ctx, project.ID, model.EventNarrativeFailed, narrativeErr)
		return nil, apperr.Wrap(apperr.ErrUpstream, op, "narrative generation failed", narrativeErr)
	}

	if coverURL != "" {
		if _, err := s.store.SetProjectCoverIfEmpty(ctx, project.ID, coverURL); err != nil {
			slog.Error("failed to store project cover", "project_id", project.ID, "error", err)
		}
		if _, err := s.store.SetAlbumCoverIfEmpty(ctx, project.ID, coverURL); err != nil {
			slog.Error("failed to store album cover", "project_id", project.ID, "error", err)
		}
	}

	if trackErr != nil {
		// The track is already marked failed and can be retried on its own.
		slog.Warn("first track submission failed", "project_id", project.ID, "track", s.opts.PrimaryTrack, "error", trackErr)
	}

	return &model.StartShowResponse{
		ProjectID:   project.ID,
		Status:      project.Status,
		ShareID:     album.ShareID,
		Title:       title,
		CoverURL:    coverURL,
		FirstTaskID: firstTaskID,
	}, nil
}

func (s *ShowService) coverArt(ctx context.Context, project *model.Project, concept *model.Concept, title string) string {
	if s.image == nil {
		return ""
	}
	started := time.Now()
	url := s.image.Generate(ctx, s.prompts.CoverArtPrompt(project, concept, title))
	if url == "" {
		s.journal.record(ctx, logEntry{projectID: project.ID, event: model.EventCoverArtFailed, started: started})
		return ""
	}
	s.journal.record(ctx, logEntry{projectID: project.ID, event: model.EventCoverArtComplete, started: started})
	return url
}

func (s *ShowService) narrative(ctx context.Context, project *model.Project, concept *model.Concept, title string) (*model.Album, error) {
	started := time.Now()
	raw, err := s.text.GenerateStructured(ctx, &client.TextRequest{
		System:      s.prompts.NarrativeSystem(),
		Prompt:      s.prompts.NarrativePrompt(project, concept, title),
		Temperature: narrativeTemperature,
		MaxTokens:   narrativeMaxTokens,
	}, NarrativeSchema)
	if err != nil {
		return nil, err
	}

	var n model.Narrative
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, apperr.Wrap(apperr.ErrParse, "narrative", "decode narrative", err)
	}
	cast, err := json.Marshal(n.Cast)
	if err != nil {
		return nil, fmt.Errorf("encode cast: %w", err)
	}

	album, err := s.store.CreateAlbum(ctx, &model.Album{
		ProjectID:   project.ID,
		ShareID:     uuid.New().String(),
		Title:       title,
		Synopsis:    n.Synopsis,
		Cast:        cast,
		SettingText: n.SettingText,
	})
	if err != nil {
		return nil, err
	}
	s.journal.record(ctx, logEntry{
		projectID: project.ID,
		event:     model.EventNarrativeComplete,
		started:   started,
		model:     s.text.Model(),
	})
	return album, nil
}

func (s *ShowService) failProject(ctx context.Context, projectID, event string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.store.MarkProjectFailed(ctx, projectID, truncateMessage(cause.Error())); err != nil {
		slog.Error("failed to mark project failed", "project_id", projectID, "error", err)
	}
	s.journal.record(ctx, logEntry{projectID: projectID, event: event, err: cause})
	s.journal.record(ctx, logEntry{projectID: projectID, event: model.EventProjectFailed})
	s.notifier.ProjectStatus(projectID, model.ProjectStatusFailed, "")
	s.notifier.BroadcastError(projectID, event, truncateMessage(cause.Error()))
	slog.Warn("project failed", "project_id", projectID, "event", event, "error", cause)
}

// GetShow returns the project with its tracks and album.
func (s *ShowService) GetShow(ctx context.Context, projectID string) (*model.ShowStatusResponse, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound("get show", "project not found")
	}
	tracks, err := s.store.ListTracks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	album, err := s.store.GetAlbumByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &model.ShowStatusResponse{Project: project, Tracks: tracks, Album: album}, nil
}

// GetShare returns the public view of a show by share id. Only finished tracks are listed.
func (s *ShowService) GetShare(ctx context.Context, shareID string) (*model.SharedShowResponse, error) {
	const op = "get share"

	album, err := s.store.GetAlbumByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if album == nil {
		return nil, apperr.NotFound(op, "share not found")
	}
	project, err := s.store.GetProject(ctx, album.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound(op, "share not found")
	}
	tracks, err := s.store.ListTracks(ctx, album.ProjectID)
	if err != nil {
		return nil, err
	}

	public := make([]*model.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Status != model.TrackStatusComplete {
			continue
		}
		t.ExternalTaskID = nil
		public = append(public, t)
	}
	return &model.SharedShowResponse{Album: album, Status: string(project.Status), Tracks: public}, nil
}

// Logs lists the generation log of a project, oldest first.
func (s *ShowService) Logs(ctx context.Context, projectID string) ([]*model.GenerationLog, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound("logs", "project not found")
	}
	return s.store.ListLogs(ctx, projectID)
}
