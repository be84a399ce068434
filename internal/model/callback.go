package model

import "encoding/json"

// SunoCallbackEnvelope is the body the music provider posts to the callback URL
type SunoCallbackEnvelope struct {
	Code int              `json:"code"`
	Msg  string           `json:"msg"`
	Data SunoCallbackData `json:"data"`
}

// SunoCallbackData carries the phase and variants of a callback
type SunoCallbackData struct {
	CallbackType string                `json:"callbackType"`
	TaskID       string                `json:"task_id"`
	Data         []SunoCallbackVariant `json:"data"`
}

// SunoCallbackVariant is one generated audio variant
type SunoCallbackVariant struct {
	ID       string  `json:"id"`
	AudioURL string  `json:"audio_url"`
	ImageURL string  `json:"image_url"`
	Duration float64 `json:"duration"`
	Title    string  `json:"title"`
}

// CallbackEvent is the provider-neutral form of a callback delivery
type CallbackEvent struct {
	Phase          CallbackPhase
	ProviderTaskID string
	Variants       []Variant
	ErrorMessage   string
}

// Variant is one generated asset candidate
type Variant struct {
	ID              string
	AudioURL        string  `validate:"required,url"`
	ImageURL        string  `validate:"omitempty,url"`
	DurationSeconds float64 `validate:"gte=0"`
	Title           string
}

// ToEvent maps the provider envelope onto a CallbackEvent. A non-200 code is an error phase.
func (e *SunoCallbackEnvelope) ToEvent() CallbackEvent {
	ev := CallbackEvent{
		Phase:          CallbackPhase(e.Data.CallbackType),
		ProviderTaskID: e.Data.TaskID,
	}
	if e.Code != 0 && e.Code != 200 {
		ev.Phase = CallbackPhaseError
		ev.ErrorMessage = e.Msg
		return ev
	}
	if ev.Phase == CallbackPhaseError {
		ev.ErrorMessage = e.Msg
	}
	for _, v := range e.Data.Data {
		ev.Variants = append(ev.Variants, Variant{
			ID:              v.ID,
			AudioURL:        v.AudioURL,
			ImageURL:        v.ImageURL,
			DurationSeconds: v.Duration,
			Title:           v.Title,
		})
	}
	return ev
}

// ParseSunoCallback decodes a raw callback body.
func ParseSunoCallback(body []byte) (*SunoCallbackEnvelope, error) {
	var env SunoCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// BestVariant returns the variant with the greatest duration, first seen on ties.
func BestVariant(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.DurationSeconds > best.DurationSeconds {
			best = v
		}
	}
	return best, true
}

// CallbackAck is the response body for a routed callback
type CallbackAck struct {
	Status string `json:"status"`
}
