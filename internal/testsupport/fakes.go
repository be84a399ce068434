package testsupport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/showrunner/internal/apperr"
	"github.com/makeasinger/showrunner/internal/client"
	"github.com/makeasinger/showrunner/internal/model"
)

// FakeText is an in-memory TextGenerator. Structured calls are routed by schema:
// a schema mentioning titleOptions is a concept request, anything else a narrative.
type FakeText struct {
	mu sync.Mutex

	ConceptJSON   string
	NarrativeJSON string
	Lyrics        string

	ConceptErr   error
	NarrativeErr error
	LyricsErr    error
	LyricsDelay  time.Duration

	calls map[string]int
}

// NewFakeText returns a FakeText that answers every request successfully.
func NewFakeText() *FakeText {
	concept, _ := json.Marshal(SampleConcept())
	return &FakeText{
		ConceptJSON:   string(concept),
		NarrativeJSON: `{"synopsis":"A keeper and a sailor find each other in a storm.","cast":[{"name":"Mara","description":"The keeper"}],"settingText":"A lighthouse at the edge of the world."}`,
		Lyrics:        "[Verse]\nLight the lamp and hold the line\n[Chorus]\nShine, shine",
		calls:         make(map[string]int),
	}
}

func (f *FakeText) count(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[kind]++
}

// Calls returns how many concept, narrative or lyrics requests were made.
func (f *FakeText) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *FakeText) Model() string { return "fake-text" }

func (f *FakeText) Generate(ctx context.Context, req *client.TextRequest) (string, error) {
	f.count("lyrics")
	if f.LyricsDelay > 0 {
		select {
		case <-time.After(f.LyricsDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.LyricsErr != nil {
		return "", apperr.Upstream("text generate", f.LyricsErr)
	}
	return f.Lyrics, nil
}

func (f *FakeText) GenerateStructured(_ context.Context, _ *client.TextRequest, schema json.RawMessage) (json.RawMessage, error) {
	if bytes.Contains(schema, []byte("titleOptions")) {
		f.count("concept")
		if f.ConceptErr != nil {
			return nil, f.ConceptErr
		}
		return json.RawMessage(f.ConceptJSON), nil
	}
	f.count("narrative")
	if f.NarrativeErr != nil {
		return nil, f.NarrativeErr
	}
	return json.RawMessage(f.NarrativeJSON), nil
}

// FakeMusic is an in-memory MusicGenerator that records every submission.
type FakeMusic struct {
	mu sync.Mutex

	SubmitErr   error
	SubmitDelay time.Duration
	Statuses    map[string]*client.MusicTaskStatus

	submissions []client.SubmitMusicRequest
}

// NewFakeMusic returns a FakeMusic that accepts every submission.
func NewFakeMusic() *FakeMusic {
	return &FakeMusic{Statuses: make(map[string]*client.MusicTaskStatus)}
}

func (f *FakeMusic) Submit(ctx context.Context, req *client.SubmitMusicRequest) (string, error) {
	if f.SubmitDelay > 0 {
		select {
		case <-time.After(f.SubmitDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, *req)
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	return fmt.Sprintf("task-%d", len(f.submissions)), nil
}

func (f *FakeMusic) TaskStatus(_ context.Context, taskID string) (*client.MusicTaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.Statuses[taskID]; ok {
		return st, nil
	}
	return &client.MusicTaskStatus{TaskID: taskID, Status: client.SunoStatusPending}, nil
}

// PollTask returns the stored status immediately.
func (f *FakeMusic) PollTask(ctx context.Context, taskID string, _, _ time.Duration) (*client.MusicTaskStatus, error) {
	return f.TaskStatus(ctx, taskID)
}

// Submissions returns a copy of the recorded submissions.
func (f *FakeMusic) Submissions() []client.SubmitMusicRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]client.SubmitMusicRequest, len(f.submissions))
	copy(out, f.submissions)
	return out
}

// FakeImage is an in-memory ImageGenerator.
type FakeImage struct {
	mu    sync.Mutex
	URL   string
	calls int
}

func (f *FakeImage) Generate(_ context.Context, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.URL
}

// Calls returns the number of image requests.
func (f *FakeImage) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeEnqueuer records asynq tasks instead of sending them to Redis.
type FakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	ids   map[string]struct{}
}

func (f *FakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = make(map[string]struct{})
	}
	info := &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload(), Queue: "default"}
	for _, opt := range opts {
		switch opt.Type() {
		case asynq.TaskIDOpt:
			id, _ := opt.Value().(string)
			if _, dup := f.ids[id]; dup {
				return nil, asynq.ErrTaskIDConflict
			}
			f.ids[id] = struct{}{}
			info.ID = id
		case asynq.QueueOpt:
			info.Queue, _ = opt.Value().(string)
		}
	}
	f.tasks = append(f.tasks, task)
	return info, nil
}

// Tasks returns the recorded tasks of a type.
func (f *FakeEnqueuer) Tasks(taskType string) []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*asynq.Task
	for _, t := range f.tasks {
		if t.Type() == taskType {
			out = append(out, t)
		}
	}
	return out
}

// RecordingNotifier keeps every status push for assertions.
type RecordingNotifier struct {
	mu       sync.Mutex
	Projects []model.WSProjectMessage
	Tracks   []model.WSTrackMessage
	Errors   []model.WSErrorMessage
}

func (r *RecordingNotifier) ProjectStatus(projectID string, status model.ProjectStatus, shareID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Projects = append(r.Projects, model.WSProjectMessage{
		Type: model.WSMessageTypeProject, ProjectID: projectID, Status: status, ShareID: shareID,
	})
}

func (r *RecordingNotifier) TrackStatus(projectID string, trackNumber int, status model.TrackStatus, audioURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tracks = append(r.Tracks, model.WSTrackMessage{
		Type: model.WSMessageTypeTrack, ProjectID: projectID, TrackNumber: trackNumber, Status: status, AudioURL: audioURL,
	})
}

func (r *RecordingNotifier) BroadcastError(projectID string, code, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, model.WSErrorMessage{
		Type: model.WSMessageTypeError, ProjectID: projectID, Error: model.WSError{Code: code, Message: message},
	})
}

// ProjectStatuses returns the pushed project statuses in order.
func (r *RecordingNotifier) ProjectStatuses() []model.ProjectStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ProjectStatus, 0, len(r.Projects))
	for _, m := range r.Projects {
		out = append(out, m.Status)
	}
	return out
}
