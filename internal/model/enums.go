package model

// Project status
type ProjectStatus string

const (
	ProjectStatusIntake          ProjectStatus = "intake"
	ProjectStatusEnriching       ProjectStatus = "enriching"
	ProjectStatusChoosing        ProjectStatus = "choosing"
	ProjectStatusGeneratingMusic ProjectStatus = "generating_music"
	ProjectStatusGeneratingMeta  ProjectStatus = "generating_meta"
	ProjectStatusComplete        ProjectStatus = "complete"
	ProjectStatusFailed          ProjectStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusComplete || s == ProjectStatusFailed
}

// HasConcept reports whether enrichment has already produced a concept.
func (s ProjectStatus) HasConcept() bool {
	switch s {
	case ProjectStatusChoosing, ProjectStatusGeneratingMusic, ProjectStatusGeneratingMeta, ProjectStatusComplete:
		return true
	}
	return false
}

// NonTerminalProjectStatuses lists every status that may still move to failed.
var NonTerminalProjectStatuses = []ProjectStatus{
	ProjectStatusIntake,
	ProjectStatusEnriching,
	ProjectStatusChoosing,
	ProjectStatusGeneratingMusic,
	ProjectStatusGeneratingMeta,
}

// Track status
type TrackStatus string

const (
	TrackStatusPending          TrackStatus = "pending"
	TrackStatusGeneratingLyrics TrackStatus = "generating_lyrics"
	TrackStatusLyricsComplete   TrackStatus = "lyrics_complete"
	TrackStatusGeneratingAudio  TrackStatus = "generating_audio"
	TrackStatusComplete         TrackStatus = "complete"
	TrackStatusFailed           TrackStatus = "failed"
)

// IsTerminal reports whether the track reached complete or failed.
func (s TrackStatus) IsTerminal() bool {
	return s == TrackStatusComplete || s == TrackStatusFailed
}

// Musical types
type MusicalType string

const (
	MusicalTypeClassic   MusicalType = "classic"
	MusicalTypeRockOpera MusicalType = "rock_opera"
	MusicalTypeFairytale MusicalType = "fairytale"
	MusicalTypeGift      MusicalType = "gift"
	MusicalTypePoster    MusicalType = "poster"
)

var ValidMusicalTypes = []MusicalType{
	MusicalTypeClassic, MusicalTypeRockOpera, MusicalTypeFairytale,
	MusicalTypeGift, MusicalTypePoster,
}

// IsValid reports whether t is a known musical type.
func (t MusicalType) IsValid() bool {
	for _, v := range ValidMusicalTypes {
		if v == t {
			return true
		}
	}
	return false
}

// RequiresChoice reports whether the flow pauses in choosing after enrichment.
func (t MusicalType) RequiresChoice() bool {
	return t == MusicalTypeGift || t == MusicalTypePoster
}

// Callback phases reported by the music provider
type CallbackPhase string

const (
	CallbackPhaseText     CallbackPhase = "text"
	CallbackPhaseFirst    CallbackPhase = "first"
	CallbackPhaseComplete CallbackPhase = "complete"
	CallbackPhaseError    CallbackPhase = "error"
)

// Delivery mode for music generation results
type DeliveryMode string

const (
	DeliveryWebhook DeliveryMode = "webhook"
	DeliveryPolling DeliveryMode = "polling"
)
