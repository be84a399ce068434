package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/makeasinger/showrunner/internal/config"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
	"github.com/makeasinger/showrunner/internal/testsupport"
)

type cliEnv struct {
	ctx      *commandContext
	store    *store.Store
	enqueuer *testsupport.FakeEnqueuer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	st := testsupport.NewStore(t)
	enq := &testsupport.FakeEnqueuer{}
	ctx := newCommandContext(new(string))
	ctx.store = st
	ctx.enqueuer = enq
	ctx.config = &config.Config{Pipeline: config.PipelineConfig{TrackCount: 6, PrimaryTrack: 1}}
	return &cliEnv{ctx: ctx, store: st, enqueuer: enq}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := buildRootCommand(e.ctx)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func completeAll(t *testing.T, st *store.Store, projectID string, count int) {
	t.Helper()

	ctx := context.Background()
	for n := 1; n <= count; n++ {
		if _, err := st.CompareAndSetTrackStatus(ctx, projectID, n, model.TrackStatusGeneratingAudio, model.TrackStatusPending); err != nil {
			t.Fatalf("claim track %d: %v", n, err)
		}
		ok, err := st.CompleteTrack(ctx, projectID, n, "", model.TrackAsset{
			AudioURL:        "https://cdn.example.com/t.mp3",
			DurationSeconds: 60,
		})
		if err != nil || !ok {
			t.Fatalf("complete track %d: ok=%v err=%v", n, ok, err)
		}
	}
}

func TestStatusPrintsTracks(t *testing.T) {
	env := newCLIEnv(t)
	p := testsupport.SeedProject(t, env.store, model.ProjectStatusGeneratingMusic, model.MusicalTypeClassic, testsupport.SampleConcept())
	testsupport.SeedTracks(t, env.store, p.ID, 6)
	album := testsupport.SeedAlbum(t, env.store, p.ID)

	out, err := env.run(t, "status", p.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{p.ID, "generating_music", album.ShareID, "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusUnknownProject(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "status", "missing")
	if !errors.Is(err, errProjectNotFound) {
		t.Fatalf("expected errProjectNotFound, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	env := newCLIEnv(t)
	running := testsupport.SeedProject(t, env.store, model.ProjectStatusGeneratingMusic, model.MusicalTypeClassic, nil)
	intake := testsupport.SeedProject(t, env.store, model.ProjectStatusIntake, model.MusicalTypeGift, nil)

	out, err := env.run(t, "list", "--status", "generating_music")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, running.ID) {
		t.Errorf("expected %s in output:\n%s", running.ID, out)
	}
	if strings.Contains(out, intake.ID) {
		t.Errorf("did not expect %s in output:\n%s", intake.ID, out)
	}
}

func TestFinalizeCompletesReadyProject(t *testing.T) {
	env := newCLIEnv(t)
	p := testsupport.SeedProject(t, env.store, model.ProjectStatusGeneratingMusic, model.MusicalTypeClassic, testsupport.SampleConcept())
	testsupport.SeedTracks(t, env.store, p.ID, 6)
	testsupport.SeedAlbum(t, env.store, p.ID)
	completeAll(t, env.store, p.ID, 6)

	out, err := env.run(t, "finalize", p.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !strings.Contains(out, "finalized") || strings.Contains(out, "not finalized") {
		t.Errorf("unexpected output: %s", out)
	}
	if got := testsupport.MustProject(t, env.store, p.ID).Status; got != model.ProjectStatusComplete {
		t.Errorf("status = %s, want complete", got)
	}
}

func TestFinalizeReportsPendingProject(t *testing.T) {
	env := newCLIEnv(t)
	p := testsupport.SeedProject(t, env.store, model.ProjectStatusGeneratingMusic, model.MusicalTypeClassic, testsupport.SampleConcept())
	testsupport.SeedTracks(t, env.store, p.ID, 6)

	out, err := env.run(t, "finalize", p.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !strings.Contains(out, "not finalized (status generating_music)") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestBatchEnqueuesPendingTracks(t *testing.T) {
	env := newCLIEnv(t)
	p := testsupport.SeedProject(t, env.store, model.ProjectStatusGeneratingMusic, model.MusicalTypeClassic, testsupport.SampleConcept())
	testsupport.SeedTracks(t, env.store, p.ID, 6)

	out, err := env.run(t, "batch", p.ID)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !strings.Contains(out, "Enqueued: 1, 2, 3, 4, 5, 6") {
		t.Errorf("unexpected output: %s", out)
	}
	if got := len(env.enqueuer.Tasks(model.TaskTypeTrackGenerate)); got != 6 {
		t.Errorf("enqueued %d tasks, want 6", got)
	}
}
