package service

import (
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/showrunner/internal/config"
	"github.com/makeasinger/showrunner/internal/model"
)

// QueueTracks is the asynq queue used for batch track work.
const QueueTracks = "tracks"

// Options holds the pipeline knobs shared by the services
type Options struct {
	TrackCount                  int
	PrimaryTrack                int
	FailedTracksBlockCompletion bool
	CallbackBaseURL             string
	CallbackSecret              string
	PollInterval                time.Duration
	PollMaxWait                 time.Duration
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TrackCount:                  cfg.Pipeline.TrackCount,
		PrimaryTrack:                cfg.Pipeline.PrimaryTrack,
		FailedTracksBlockCompletion: cfg.Pipeline.FailedTracksBlockCompletion,
		CallbackBaseURL:             cfg.Callback.BaseURL,
		CallbackSecret:              cfg.Callback.Secret,
		PollInterval:                time.Duration(cfg.Suno.PollIntervalSeconds) * time.Second,
		PollMaxWait:                 time.Duration(cfg.Suno.PollMaxWaitMinutes) * time.Minute,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.TrackCount <= 0 {
		o.TrackCount = 6
	}
	if o.PrimaryTrack <= 0 || o.PrimaryTrack > o.TrackCount {
		o.PrimaryTrack = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.PollMaxWait <= 0 {
		o.PollMaxWait = 10 * time.Minute
	}
	return o
}

func (o Options) validTrack(n int) bool {
	return n >= 1 && n <= o.TrackCount
}

// Notifier receives status changes for live clients
type Notifier interface {
	ProjectStatus(projectID string, status model.ProjectStatus, shareID string)
	TrackStatus(projectID string, trackNumber int, status model.TrackStatus, audioURL string)
	// BroadcastError reports a failure; code is the generation log event.
	BroadcastError(projectID string, code, message string)
}

type noopNotifier struct{}

func (noopNotifier) ProjectStatus(string, model.ProjectStatus, string)  {}
func (noopNotifier) TrackStatus(string, int, model.TrackStatus, string) {}
func (noopNotifier) BroadcastError(string, string, string)             {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// TaskEnqueuer is the part of *asynq.Client the services use
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
