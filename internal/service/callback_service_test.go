package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/testsupport"
)

func completeRequest(t *testing.T, projectID string, track int, taskID string, variants ...callbackVariant) *CallbackRequest {
	t.Helper()
	return &CallbackRequest{
		ProjectID:   projectID,
		TrackNumber: strconv.Itoa(track),
		Secret:      testSecret,
		Body:        callbackBody(t, 200, "complete", taskID, variants...),
	}
}

func TestCallbackCompletePicksLongestVariant(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	h.submitTrack(t, p.ID, 2, "task-2")

	err := h.callbacks.Handle(context.Background(), completeRequest(t, p.ID, 2, "task-2",
		callbackVariant{ID: "a", AudioURL: "https://cdn.example.com/a.mp3", Duration: 30},
		callbackVariant{ID: "b", AudioURL: "https://cdn.example.com/b.mp3", ImageURL: "https://cdn.example.com/b.jpg", Duration: 47},
		callbackVariant{ID: "c", AudioURL: "https://cdn.example.com/c.mp3", Duration: 22},
	))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	track := testsupport.MustTrack(t, h.store, p.ID, 2)
	if track.Status != model.TrackStatusComplete {
		t.Fatalf("expected complete, got %s", track.Status)
	}
	if track.DurationSeconds != 47 {
		t.Errorf("expected duration 47, got %v", track.DurationSeconds)
	}
	if track.AudioURL == nil || *track.AudioURL != "https://cdn.example.com/b.mp3" {
		t.Errorf("unexpected audio url %v", track.AudioURL)
	}

	project := testsupport.MustProject(t, h.store, p.ID)
	if project.CoverURL == nil || *project.CoverURL != "https://cdn.example.com/b.jpg" {
		t.Errorf("expected cover backfill, got %v", project.CoverURL)
	}
}

func TestCallbackDuplicateCompleteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	h.submitTrack(t, p.ID, 2, "task-2")
	ctx := context.Background()

	first := completeRequest(t, p.ID, 2, "task-2", callbackVariant{ID: "a", AudioURL: "https://cdn.example.com/a.mp3", Duration: 40})
	second := completeRequest(t, p.ID, 2, "task-2", callbackVariant{ID: "z", AudioURL: "https://cdn.example.com/z.mp3", Duration: 99})

	if err := h.callbacks.Handle(ctx, first); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := h.callbacks.Handle(ctx, second); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	track := testsupport.MustTrack(t, h.store, p.ID, 2)
	if track.AudioURL == nil || *track.AudioURL != "https://cdn.example.com/a.mp3" {
		t.Errorf("first delivery should win, got %v", track.AudioURL)
	}
	if track.DurationSeconds != 40 {
		t.Errorf("expected duration 40, got %v", track.DurationSeconds)
	}
	events := h.events(t, p.ID)
	if countEvent(events, model.EventCallbackComplete) != 1 {
		t.Errorf("expected one applied completion, got %v", events)
	}
	if countEvent(events, model.EventCallbackDuplicate) != 1 {
		t.Errorf("expected one duplicate entry, got %v", events)
	}
}

func TestCallbackStaleTaskIgnored(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	h.submitTrack(t, p.ID, 2, "task-new")

	err := h.callbacks.Handle(context.Background(), completeRequest(t, p.ID, 2, "task-old",
		callbackVariant{ID: "a", AudioURL: "https://cdn.example.com/a.mp3", Duration: 40}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if track := testsupport.MustTrack(t, h.store, p.ID, 2); track.Status != model.TrackStatusGeneratingAudio {
		t.Errorf("stale delivery must not change the track, got %s", track.Status)
	}
}

func TestCallbackWrongSecretChangesNothing(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	h.submitTrack(t, p.ID, 2, "task-2")
	before := len(h.events(t, p.ID))

	req := completeRequest(t, p.ID, 2, "task-2", callbackVariant{ID: "a", AudioURL: "https://cdn.example.com/a.mp3", Duration: 40})
	req.Secret = "wrong"

	err := h.callbacks.Handle(context.Background(), req)
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if track := testsupport.MustTrack(t, h.store, p.ID, 2); track.Status != model.TrackStatusGeneratingAudio {
		t.Errorf("expected track untouched, got %s", track.Status)
	}
	if after := len(h.events(t, p.ID)); after != before {
		t.Errorf("expected no log writes, got %d new entries", after-before)
	}
}

func TestCallbackEmptyConfiguredSecretRejects(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CallbackSecret = "" })
	p := h.seedShow(t)

	req := completeRequest(t, p.ID, 2, "task-2")
	req.Secret = ""
	if err := h.callbacks.Handle(context.Background(), req); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCallbackMalformedRequests(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)

	tests := []struct {
		name string
		req  *CallbackRequest
	}{
		{"bad project id", &CallbackRequest{ProjectID: "nope", TrackNumber: "1", Secret: testSecret, Body: []byte(`{}`)}},
		{"bad track number", &CallbackRequest{ProjectID: p.ID, TrackNumber: "x", Secret: testSecret, Body: []byte(`{}`)}},
		{"track out of range", &CallbackRequest{ProjectID: p.ID, TrackNumber: "9", Secret: testSecret, Body: []byte(`{}`)}},
		{"unparseable body", &CallbackRequest{ProjectID: p.ID, TrackNumber: "1", Secret: testSecret, Body: []byte(`{not json`)}},
		{"complete without variants", completeRequest(t, p.ID, 1, "task-1")},
		{"variant without audio", completeRequest(t, p.ID, 1, "task-1", callbackVariant{ID: "a", Duration: 10})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.callbacks.Handle(context.Background(), tt.req); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCallbackIntermediatePhasesOnlyLog(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	h.submitTrack(t, p.ID, 1, "task-1")

	for _, phase := range []string{"text", "first", "remix"} {
		req := &CallbackRequest{
			ProjectID:   p.ID,
			TrackNumber: "1",
			Secret:      testSecret,
			Body:        callbackBody(t, 200, phase, "task-1"),
		}
		if err := h.callbacks.Handle(context.Background(), req); err != nil {
			t.Fatalf("phase %s: %v", phase, err)
		}
	}

	if track := testsupport.MustTrack(t, h.store, p.ID, 1); track.Status != model.TrackStatusGeneratingAudio {
		t.Errorf("expected generating_audio, got %s", track.Status)
	}
	events := h.events(t, p.ID)
	for _, e := range []string{model.EventCallbackText, model.EventCallbackFirst, model.EventCallbackUnknown} {
		if countEvent(events, e) != 1 {
			t.Errorf("expected one %s entry, got %v", e, events)
		}
	}
}

func TestCallbackErrorFailsTrack(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	h.submitTrack(t, p.ID, 3, "task-3")

	req := &CallbackRequest{
		ProjectID:   p.ID,
		TrackNumber: "3",
		Secret:      testSecret,
		Body:        []byte(`{"code":531,"msg":"sensitive words","data":{"callbackType":"","task_id":"task-3","data":[]}}`),
	}
	if err := h.callbacks.Handle(context.Background(), req); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	track := testsupport.MustTrack(t, h.store, p.ID, 3)
	if track.Status != model.TrackStatusFailed {
		t.Fatalf("expected failed, got %s", track.Status)
	}
	if track.ErrorMessage == nil || *track.ErrorMessage != "sensitive words" {
		t.Errorf("expected provider message, got %v", track.ErrorMessage)
	}
	errs := h.notifier.Errors
	if len(errs) == 0 || errs[len(errs)-1].Error.Code != model.EventCallbackError {
		t.Errorf("expected a callback_error broadcast, got %+v", errs)
	}
}

func TestCallbackLastTrackFinalizesProject(t *testing.T) {
	h := newHarness(t)
	p := h.seedShow(t)
	for n := 1; n <= 5; n++ {
		h.completeTrack(t, p.ID, n, 60)
	}
	h.submitTrack(t, p.ID, 6, "task-6")

	err := h.callbacks.Handle(context.Background(), completeRequest(t, p.ID, 6, "task-6",
		callbackVariant{ID: "f", AudioURL: "https://cdn.example.com/f.mp3", Duration: 90}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if project := testsupport.MustProject(t, h.store, p.ID); project.Status != model.ProjectStatusComplete {
		t.Errorf("expected complete, got %s", project.Status)
	}
	album, err := h.store.GetAlbumByProject(context.Background(), p.ID)
	if err != nil || album == nil {
		t.Fatalf("GetAlbumByProject: %v", err)
	}
	if album.CompletedTracks != 6 || album.TotalDurationSeconds != 390 {
		t.Errorf("unexpected summary: %d tracks, %v seconds", album.CompletedTracks, album.TotalDurationSeconds)
	}
}
