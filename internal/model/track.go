package model

import "time"

// Track represents one musical number of a project
type Track struct {
	ProjectID       string      `json:"projectId"`
	TrackNumber     int         `json:"trackNumber"`
	Status          TrackStatus `json:"status"`
	Title           string      `json:"title,omitempty"`
	Lyrics          *string     `json:"lyrics,omitempty"`
	Style           *string     `json:"style,omitempty"`
	ExternalTaskID  *string     `json:"externalTaskId,omitempty"`
	AudioURL        *string     `json:"audioUrl,omitempty"`
	CoverURL        *string     `json:"coverUrl,omitempty"`
	DurationSeconds float64     `json:"duration"`
	RetryCount      int         `json:"retryCount"`
	ErrorMessage    *string     `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// HasLyrics reports whether non-empty lyrics are stored.
func (t *Track) HasLyrics() bool {
	return t.Lyrics != nil && *t.Lyrics != ""
}

// TrackAsset is the chosen provider output written on completion
type TrackAsset struct {
	ExternalID      string
	AudioURL        string
	CoverURL        string
	DurationSeconds float64
}

// SetLyricsRequest represents user-supplied lyrics for a track
type SetLyricsRequest struct {
	Lyrics string `json:"lyrics" validate:"required,min=1,max=8000"`
	Style  string `json:"style" validate:"omitempty,max=500"`
}

// GenerateTrackResponse represents the response for a track submission
type GenerateTrackResponse struct {
	ProjectID   string      `json:"projectId"`
	TrackNumber int         `json:"trackNumber"`
	TaskID      string      `json:"taskId"`
	Status      TrackStatus `json:"status"`
}
