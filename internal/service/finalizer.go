package service

import (
	"context"
	"log/slog"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
)

// Finalizer moves a project to complete once its tracks allow it.
// Any number of callers may race; exactly one observes the final transition.
type Finalizer struct {
	store    *store.Store
	notifier Notifier
	journal  journal
	opts     Options
}

func NewFinalizer(st *store.Store, notifier Notifier, opts Options) *Finalizer {
	return &Finalizer{
		store:    st,
		notifier: notifierOrNoop(notifier),
		journal:  journal{store: st},
		opts:     opts.withDefaults(),
	}
}

// MaybeFinalize completes the project when every track is terminal and the primary
// track is complete. It returns true only to the caller whose final write succeeded.
func (f *Finalizer) MaybeFinalize(ctx context.Context, projectID string) (bool, error) {
	project, err := f.store.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if project == nil || project.Status.IsTerminal() {
		return false, nil
	}
	if project.Status != model.ProjectStatusGeneratingMusic && project.Status != model.ProjectStatusGeneratingMeta {
		return false, nil
	}

	tracks, err := f.store.ListTracks(ctx, projectID)
	if err != nil {
		return false, err
	}
	if !f.ready(tracks) {
		return false, nil
	}

	// Losing this write is fine; another caller already moved the project on.
	moved, err := f.store.CompareAndSetProjectStatus(ctx, projectID,
		model.ProjectStatusGeneratingMeta, model.ProjectStatusGeneratingMusic)
	if err != nil {
		return false, err
	}
	if moved {
		f.journal.record(ctx, logEntry{projectID: projectID, event: model.EventProjectMeta})
		f.notifier.ProjectStatus(projectID, model.ProjectStatusGeneratingMeta, "")
	}

	if err := f.summarise(ctx, project, tracks); err != nil {
		return false, err
	}

	won, err := f.store.CompareAndSetProjectStatus(ctx, projectID,
		model.ProjectStatusComplete, model.ProjectStatusGeneratingMeta)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	shareID := ""
	if album, err := f.store.GetAlbumByProject(ctx, projectID); err == nil && album != nil {
		shareID = album.ShareID
	}
	f.journal.record(ctx, logEntry{projectID: projectID, event: model.EventProjectComplete})
	f.notifier.ProjectStatus(projectID, model.ProjectStatusComplete, shareID)
	slog.Info("project complete", "project_id", projectID, "share_id", shareID)
	return true, nil
}

func (f *Finalizer) ready(tracks []*model.Track) bool {
	if len(tracks) == 0 {
		return false
	}
	primaryComplete := false
	for _, t := range tracks {
		if !t.Status.IsTerminal() {
			return false
		}
		if t.Status == model.TrackStatusFailed && f.opts.FailedTracksBlockCompletion {
			return false
		}
		if t.TrackNumber == f.opts.PrimaryTrack && t.Status == model.TrackStatusComplete {
			primaryComplete = true
		}
	}
	return primaryComplete
}

// summarise is idempotent: it recomputes totals from the tracks every time.
func (f *Finalizer) summarise(ctx context.Context, project *model.Project, tracks []*model.Track) error {
	var (
		total     float64
		completed int
		cover     string
	)
	for _, t := range tracks {
		if t.Status != model.TrackStatusComplete {
			continue
		}
		completed++
		total += t.DurationSeconds
		if cover == "" && t.CoverURL != nil {
			cover = *t.CoverURL
		}
	}

	if err := f.store.UpdateAlbumSummary(ctx, project.ID, total, completed); err != nil {
		return err
	}
	if cover != "" {
		if _, err := f.store.SetProjectCoverIfEmpty(ctx, project.ID, cover); err != nil {
			return err
		}
		if _, err := f.store.SetAlbumCoverIfEmpty(ctx, project.ID, cover); err != nil {
			return err
		}
	}
	return nil
}
