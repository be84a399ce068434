package model

// WebSocket message types
const (
	WSMessageTypeProject = "project"
	WSMessageTypeTrack   = "track"
	WSMessageTypeError   = "error"
	WSMessageTypePing    = "ping"
	WSMessageTypePong    = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProjectMessage reports a project status change
type WSProjectMessage struct {
	Type      string        `json:"type"`
	ProjectID string        `json:"projectId"`
	Status    ProjectStatus `json:"status"`
	ShareID   string        `json:"shareId,omitempty"`
}

// WSTrackMessage reports a track status change
type WSTrackMessage struct {
	Type        string      `json:"type"`
	ProjectID   string      `json:"projectId"`
	TrackNumber int         `json:"trackNumber"`
	Status      TrackStatus `json:"status"`
	AudioURL    string      `json:"audioUrl,omitempty"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type      string  `json:"type"`
	ProjectID string  `json:"projectId"`
	Error     WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
