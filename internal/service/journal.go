package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
)

// journal appends generation log entries. Write failures are logged and never
// change the outcome of the operation being recorded.
type journal struct {
	store *store.Store
}

type logEntry struct {
	projectID string
	track     int
	event     string
	started   time.Time
	model     string
	err       error
	message   string
}

func (j journal) record(ctx context.Context, e logEntry) {
	entry := &model.GenerationLog{
		ProjectID: e.projectID,
		Event:     e.event,
	}
	if e.track > 0 {
		n := e.track
		entry.TrackNumber = &n
	}
	if !e.started.IsZero() {
		d := time.Since(e.started).Milliseconds()
		entry.DurationMs = &d
	}
	if e.model != "" {
		m := e.model
		entry.Model = &m
	}
	switch {
	case e.err != nil:
		msg := e.err.Error()
		entry.Error = &msg
	case e.message != "":
		msg := e.message
		entry.Error = &msg
	}

	// The entry outlives a cancelled request.
	if err := j.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("generation log write failed", "project_id", e.projectID, "event", e.event, "error", err)
	}
}
