package model

// Background task types
const (
	TaskTypeTrackGenerate = "track:generate"
	TaskTypeTrackPoll     = "track:poll"
)

// TrackTaskPayload is the asynq payload for track:generate
type TrackTaskPayload struct {
	ProjectID   string       `json:"projectId"`
	TrackNumber int          `json:"trackNumber"`
	Delivery    DeliveryMode `json:"delivery"`
}

// PollTaskPayload is the asynq payload for track:poll
type PollTaskPayload struct {
	ProjectID   string `json:"projectId"`
	TrackNumber int    `json:"trackNumber"`
	TaskID      string `json:"taskId"`
}

// BatchResponse lists the tasks enqueued for a batch run
type BatchResponse struct {
	ProjectID string   `json:"projectId"`
	Enqueued  []int    `json:"enqueued"`
	Skipped   []int    `json:"skipped,omitempty"`
	TaskIDs   []string `json:"taskIds,omitempty"`
}
