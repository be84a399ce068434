package service

import (
	"context"
	"sync"
	"testing"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/testsupport"
)

func TestMaybeFinalizeConcurrentCallersCompleteOnce(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	for n := 1; n <= 6; n++ {
		h.completeTrack(t, p.ID, n, 30)
	}

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := h.finalizer.MaybeFinalize(context.Background(), p.ID)
			if err != nil {
				t.Errorf("MaybeFinalize: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if project := testsupport.MustProject(t, h.store, p.ID); project.Status != model.ProjectStatusComplete {
		t.Errorf("expected complete, got %s", project.Status)
	}
	if n := countEvent(h.events(t, p.ID), model.EventProjectComplete); n != 1 {
		t.Errorf("expected one project_complete entry, got %d", n)
	}
}

func TestMaybeFinalizeWaitsForAllTracks(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	for n := 1; n <= 5; n++ {
		h.completeTrack(t, p.ID, n, 30)
	}

	won, err := h.finalizer.MaybeFinalize(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("MaybeFinalize: %v", err)
	}
	if won {
		t.Error("project must not finalize with a pending track")
	}
	if project := testsupport.MustProject(t, h.store, p.ID); project.Status != model.ProjectStatusGeneratingMusic {
		t.Errorf("expected generating_music, got %s", project.Status)
	}
}

func TestMaybeFinalizeFailedTrackDoesNotBlockByDefault(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	for n := 1; n <= 5; n++ {
		h.completeTrack(t, p.ID, n, 30)
	}
	h.failTrack(t, p.ID, 6)

	won, err := h.finalizer.MaybeFinalize(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("MaybeFinalize: %v", err)
	}
	if !won {
		t.Fatal("expected the project to complete")
	}
	album, err := h.store.GetAlbumByProject(context.Background(), p.ID)
	if err != nil || album == nil {
		t.Fatalf("GetAlbumByProject: %v", err)
	}
	if album.CompletedTracks != 5 {
		t.Errorf("expected 5 completed tracks, got %d", album.CompletedTracks)
	}
}

func TestMaybeFinalizeFailedTrackBlocksWhenConfigured(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.FailedTracksBlockCompletion = true })
	p := h.seedShow(t)
	for n := 1; n <= 5; n++ {
		h.completeTrack(t, p.ID, n, 30)
	}
	h.failTrack(t, p.ID, 6)

	won, err := h.finalizer.MaybeFinalize(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("MaybeFinalize: %v", err)
	}
	if won {
		t.Error("a failed track should block completion")
	}
}

func TestMaybeFinalizeRequiresPrimaryTrack(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	h.failTrack(t, p.ID, 1)
	for n := 2; n <= 6; n++ {
		h.completeTrack(t, p.ID, n, 30)
	}

	won, err := h.finalizer.MaybeFinalize(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("MaybeFinalize: %v", err)
	}
	if won {
		t.Error("project must not complete without its primary track")
	}
}

func TestMaybeFinalizeIgnoresTerminalProject(t *testing.T) {
	h := newHarness(t)
	p := testsupport.SeedProject(t, h.store, model.ProjectStatusFailed, model.MusicalTypeClassic, testsupport.SampleConcept())

	won, err := h.finalizer.MaybeFinalize(context.Background(), p.ID)
	if err != nil || won {
		t.Errorf("expected no-op, got won=%v err=%v", won, err)
	}
}
