package model

import (
	"encoding/json"
	"time"
)

// Album is the public narrative record of a show
type Album struct {
	ProjectID            string          `json:"projectId"`
	ShareID              string          `json:"shareId"`
	Title                string          `json:"title"`
	Synopsis             string          `json:"synopsis"`
	Cast                 json.RawMessage `json:"cast,omitempty"`
	SettingText          string          `json:"settingText"`
	CoverURL             *string         `json:"coverUrl,omitempty"`
	TotalDurationSeconds float64         `json:"totalDuration"`
	CompletedTracks      int             `json:"completedTracks"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// Narrative is the structured output of the narrative generation step
type Narrative struct {
	Synopsis    string      `json:"synopsis"`
	Cast        []Character `json:"cast"`
	SettingText string      `json:"settingText"`
}

// SharedShowResponse is the public view served by share id
type SharedShowResponse struct {
	Album  *Album   `json:"album"`
	Status string   `json:"status"`
	Tracks []*Track `json:"tracks"`
}
