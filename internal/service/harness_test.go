package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
	"github.com/makeasinger/showrunner/internal/testsupport"
)

const testSecret = "s3cret"

type harness struct {
	store     *store.Store
	text      *testsupport.FakeText
	music     *testsupport.FakeMusic
	image     *testsupport.FakeImage
	enqueuer  *testsupport.FakeEnqueuer
	notifier  *testsupport.RecordingNotifier
	opts      Options
	tracks    *TrackService
	shows     *ShowService
	callbacks *CallbackService
	finalizer *Finalizer
	batch     *BatchService
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	opts := Options{
		TrackCount:      6,
		PrimaryTrack:    1,
		CallbackBaseURL: "https://show.example.com",
		CallbackSecret:  testSecret,
	}
	for _, m := range mutate {
		m(&opts)
	}

	h := &harness{
		store:    testsupport.NewStore(t),
		text:     testsupport.NewFakeText(),
		music:    testsupport.NewFakeMusic(),
		image:    &testsupport.FakeImage{URL: "https://img.example.com/cover.png"},
		enqueuer: &testsupport.FakeEnqueuer{},
		notifier: &testsupport.RecordingNotifier{},
		opts:     opts,
	}
	h.finalizer = NewFinalizer(h.store, h.notifier, opts)
	h.tracks = NewTrackService(h.store, h.text, h.music, h.enqueuer, h.finalizer, h.notifier, opts)
	h.shows = NewShowService(h.store, h.text, h.image, h.tracks, h.notifier, opts)
	h.callbacks = NewCallbackService(h.store, h.finalizer, validator.New(), h.notifier, opts)
	h.batch = NewBatchService(h.store, h.enqueuer, opts)
	return h
}

// seedShow creates a project in generating_music with placeholder tracks and an album.
func (h *harness) seedShow(t *testing.T) *model.Project {
	t.Helper()
	p := testsupport.SeedProject(t, h.store, model.ProjectStatusGeneratingMusic, model.MusicalTypeClassic, testsupport.SampleConcept())
	testsupport.SeedTracks(t, h.store, p.ID, h.opts.TrackCount)
	testsupport.SeedAlbum(t, h.store, p.ID)
	return p
}

// submitTrack puts a track into generating_audio owned by taskID.
func (h *harness) submitTrack(t *testing.T, projectID string, trackNumber int, taskID string) {
	t.Helper()
	ctx := context.Background()
	ok, err := h.store.CompareAndSetTrackStatus(ctx, projectID, trackNumber,
		model.TrackStatusGeneratingAudio, model.TrackStatusPending, model.TrackStatusLyricsComplete, model.TrackStatusFailed)
	if err != nil || !ok {
		t.Fatalf("claim track %d: ok=%v err=%v", trackNumber, ok, err)
	}
	if taskID != "" {
		if _, err := h.store.SetTrackTaskID(ctx, projectID, trackNumber, taskID); err != nil {
			t.Fatalf("SetTrackTaskID: %v", err)
		}
	}
}

func (h *harness) completeTrack(t *testing.T, projectID string, trackNumber int, duration float64) {
	t.Helper()
	h.submitTrack(t, projectID, trackNumber, "")
	ok, err := h.store.CompleteTrack(context.Background(), projectID, trackNumber, "", model.TrackAsset{
		AudioURL:        "https://cdn.example.com/track.mp3",
		DurationSeconds: duration,
	})
	if err != nil || !ok {
		t.Fatalf("complete track %d: ok=%v err=%v", trackNumber, ok, err)
	}
}

func (h *harness) failTrack(t *testing.T, projectID string, trackNumber int) {
	t.Helper()
	h.submitTrack(t, projectID, trackNumber, "")
	ok, err := h.store.FailTrack(context.Background(), projectID, trackNumber, model.TrackStatusGeneratingAudio, "", "provider error")
	if err != nil || !ok {
		t.Fatalf("fail track %d: ok=%v err=%v", trackNumber, ok, err)
	}
}

func (h *harness) events(t *testing.T, projectID string) []string {
	t.Helper()
	logs, err := h.store.ListLogs(context.Background(), projectID)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Event)
	}
	return out
}

func countEvent(events []string, event string) int {
	n := 0
	for _, e := range events {
		if e == event {
			n++
		}
	}
	return n
}

type callbackVariant struct {
	ID       string  `json:"id"`
	AudioURL string  `json:"audio_url"`
	ImageURL string  `json:"image_url"`
	Duration float64 `json:"duration"`
}

func callbackBody(t *testing.T, code int, phase, taskID string, variants ...callbackVariant) []byte {
	t.Helper()
	if variants == nil {
		variants = []callbackVariant{}
	}
	body, err := json.Marshal(map[string]any{
		"code": code,
		"msg":  "ok",
		"data": map[string]any{
			"callbackType": phase,
			"task_id":      taskID,
			"data":         variants,
		},
	})
	if err != nil {
		t.Fatalf("marshal callback: %v", err)
	}
	return body
}
