package model

import (
	"encoding/json"
	"time"
)

// Project represents one end-to-end generation request
type Project struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId,omitempty"`
	Idea             string          `json:"idea"`
	MusicalType      MusicalType     `json:"musicalType"`
	Status           ProjectStatus   `json:"status"`
	Concept          json.RawMessage `json:"concept,omitempty"`
	ChosenTitleIndex int             `json:"chosenTitleIndex"`
	CoverURL         *string         `json:"coverUrl,omitempty"`
	ErrorMessage     *string         `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ParseConcept decodes the stored concept blob.
func (p *Project) ParseConcept() (*Concept, error) {
	if len(p.Concept) == 0 {
		return nil, nil
	}
	var c Concept
	if err := json.Unmarshal(p.Concept, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Concept is the structured narrative scaffold produced once per project
type Concept struct {
	TitleOptions []string    `json:"titleOptions"`
	Setting      string      `json:"setting"`
	Characters   []Character `json:"characters"`
	Tone         string      `json:"tone"`
	Themes       []string    `json:"themes"`
	SongTitles   []string    `json:"songTitles,omitempty"`
}

// Title returns the title option at index, falling back to the first one.
func (c *Concept) Title(index int) string {
	if c == nil || len(c.TitleOptions) == 0 {
		return ""
	}
	if index < 0 || index >= len(c.TitleOptions) {
		index = 0
	}
	return c.TitleOptions[index]
}

// Character is one role in the show
type Character struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description"`
}

// CreateShowRequest represents the request body for project intake
type CreateShowRequest struct {
	Idea        string      `json:"idea" validate:"required,min=3,max=2000"`
	MusicalType MusicalType `json:"musicalType" validate:"required,oneof=classic rock_opera fairytale gift poster"`
}

// ChooseTitleRequest represents the request body for the title choice
type ChooseTitleRequest struct {
	TitleIndex *int `json:"titleIndex" validate:"required,min=0,max=20"`
}

// StartShowResponse represents the result of starting (or resuming) a show
type StartShowResponse struct {
	ProjectID    string        `json:"projectId"`
	Status       ProjectStatus `json:"status"`
	ShareID      string        `json:"shareId,omitempty"`
	Title        string        `json:"title,omitempty"`
	TitleOptions []string      `json:"titleOptions,omitempty"`
	CoverURL     string        `json:"coverUrl,omitempty"`
	FirstTaskID  string        `json:"firstTaskId,omitempty"`
}

// ShowStatusResponse is the polling view of a project
type ShowStatusResponse struct {
	Project *Project `json:"project"`
	Tracks  []*Track `json:"tracks"`
	Album   *Album   `json:"album,omitempty"`
}
