package model

import "time"

// GenerationLog is an append-only audit record of one phase transition
type GenerationLog struct {
	ID          int64     `json:"id"`
	ProjectID   string    `json:"projectId"`
	TrackNumber *int      `json:"trackNumber,omitempty"`
	Event       string    `json:"event"`
	DurationMs  *int64    `json:"durationMs,omitempty"`
	Model       *string   `json:"model,omitempty"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Generation log events
const (
	EventConceptStarted     = "concept_started"
	EventConceptComplete    = "concept_complete"
	EventConceptFailed      = "concept_failed"
	EventTitleChosen        = "title_chosen"
	EventPlaceholders       = "placeholders_created"
	EventCoverArtComplete   = "cover_art_complete"
	EventCoverArtFailed     = "cover_art_failed"
	EventNarrativeComplete  = "narrative_complete"
	EventNarrativeFailed    = "narrative_failed"
	EventLyricsStarted      = "lyrics_started"
	EventLyricsComplete     = "lyrics_complete"
	EventLyricsFailed       = "lyrics_failed"
	EventLyricsSupplied     = "lyrics_supplied"
	EventAudioSubmitted     = "audio_submitted"
	EventAudioSubmitFailed  = "audio_submit_failed"
	EventCallbackText       = "callback_text"
	EventCallbackFirst      = "callback_first"
	EventCallbackComplete   = "callback_complete"
	EventCallbackError      = "callback_error"
	EventCallbackUnknown    = "callback_unknown"
	EventCallbackDuplicate  = "callback_duplicate"
	EventProjectMeta        = "project_meta"
	EventProjectComplete    = "project_complete"
	EventProjectFailed      = "project_failed"
)
