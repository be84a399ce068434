package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/makeasinger/showrunner/internal/model"
)

// ConceptSchema is the JSON schema the concept response must satisfy
var ConceptSchema = json.RawMessage(`{
  "type": "object",
  "required": ["titleOptions", "setting", "characters", "tone", "themes"],
  "properties": {
    "titleOptions": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "setting": {"type": "string", "minLength": 1},
    "characters": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "description"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "role": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    },
    "tone": {"type": "string", "minLength": 1},
    "themes": {"type": "array", "items": {"type": "string"}},
    "songTitles": {"type": "array", "items": {"type": "string"}}
  }
}`)

// NarrativeSchema is the JSON schema the album narrative response must satisfy
var NarrativeSchema = json.RawMessage(`{
  "type": "object",
  "required": ["synopsis", "cast", "settingText"],
  "properties": {
    "synopsis": {"type": "string", "minLength": 1},
    "cast": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "role": {"type": "string"},
          "description": {"type": "string"}
        }
      }
    },
    "settingText": {"type": "string"}
  }
}`)

const fallbackStyle = "musical theatre, vocals"

var primaryStyles = map[model.MusicalType]string{
	model.MusicalTypeClassic:   "broadway musical theatre, orchestral, theatrical vocals",
	model.MusicalTypeRockOpera: "rock opera, electric guitars, powerful vocals",
	model.MusicalTypeFairytale: "whimsical fairytale musical, strings, celesta",
	model.MusicalTypeGift:      "heartfelt acoustic musical, warm vocals",
	model.MusicalTypePoster:    "cinematic musical theatre, bold brass",
}

// PromptBuilder renders the opaque prompt strings sent to the generators
type PromptBuilder struct {
	trackCount int
}

// NewPromptBuilder creates a prompt builder for a show of trackCount numbers
func NewPromptBuilder(trackCount int) *PromptBuilder {
	return &PromptBuilder{trackCount: trackCount}
}

func (b *PromptBuilder) ConceptSystem() string {
	return `You are the head writer of a musical theatre company.
You turn a short idea into the concept for a short musical: titles, setting, characters, tone and themes.`
}

func (b *PromptBuilder) ConceptPrompt(p *model.Project) string {
	titleCount := 1
	if p.MusicalType.RequiresChoice() {
		titleCount = 3
	}

	return fmt.Sprintf(`Create the concept for a %s musical based on this idea:
%s

Give %d title option(s), a one-sentence setting, 2-4 characters with a name, role and description,
the overall tone, 2-4 themes, and exactly %d song titles in running order.

Output as JSON: {"titleOptions": [], "setting": "", "characters": [{"name": "", "role": "", "description": ""}], "tone": "", "themes": [], "songTitles": []}`,
		musicalTypeLabel(p.MusicalType), p.Idea, titleCount, b.trackCount)
}

func (b *PromptBuilder) NarrativeSystem() string {
	return `You write the programme notes for a musical: a synopsis, the cast list and a description of the setting.`
}

func (b *PromptBuilder) NarrativePrompt(p *model.Project, c *model.Concept, title string) string {
	return fmt.Sprintf(`Write the programme notes for the musical "%s".
Setting: %s
Tone: %s
Themes: %s
Characters:
%s

Output as JSON: {"synopsis": "", "cast": [{"name": "", "role": "", "description": ""}], "settingText": ""}`,
		title, c.Setting, c.Tone, strings.Join(c.Themes, ", "), characterLines(c.Characters))
}

func (b *PromptBuilder) LyricsSystem() string {
	return `You are a professional musical theatre lyricist.
Write singable lyrics with section tags such as [Verse], [Chorus] and [Bridge].
Output only the lyrics.`
}

func (b *PromptBuilder) LyricsPrompt(p *model.Project, c *model.Concept, trackNumber int, title string) string {
	return fmt.Sprintf(`Write the lyrics for "%s", the %s of the musical "%s".
Idea: %s
Setting: %s
Tone: %s
Themes: %s
Characters:
%s`,
		title, b.trackRole(trackNumber), c.Title(p.ChosenTitleIndex), p.Idea, c.Setting, c.Tone,
		strings.Join(c.Themes, ", "), characterLines(c.Characters))
}

func (b *PromptBuilder) CoverArtPrompt(p *model.Project, c *model.Concept, title string) string {
	return fmt.Sprintf(`Theatre poster artwork for the %s musical "%s". %s. Mood: %s. No text or lettering.`,
		musicalTypeLabel(p.MusicalType), title, c.Setting, c.Tone)
}

// Styles returns the ordered style candidates for a track, primary first.
func (b *PromptBuilder) Styles(p *model.Project, c *model.Concept) []string {
	primary, ok := primaryStyles[p.MusicalType]
	if !ok {
		primary = fallbackStyle
	}
	if c != nil && c.Tone != "" {
		primary = primary + ", " + c.Tone
	}
	return []string{primary, fallbackStyle}
}

// TrackTitle picks the stored title, then the concept song title, then a numbered one.
func (b *PromptBuilder) TrackTitle(p *model.Project, c *model.Concept, track *model.Track) string {
	if track != nil && track.Title != "" {
		return track.Title
	}
	n := 0
	if track != nil {
		n = track.TrackNumber
	}
	if c != nil && n >= 1 && n <= len(c.SongTitles) && c.SongTitles[n-1] != "" {
		return c.SongTitles[n-1]
	}
	return fmt.Sprintf("%s - Part %d", c.Title(p.ChosenTitleIndex), n)
}

func (b *PromptBuilder) trackRole(n int) string {
	switch {
	case n == 1:
		return "opening number"
	case n == b.trackCount:
		return "finale"
	default:
		return fmt.Sprintf("song %d", n)
	}
}

func characterLines(chars []model.Character) string {
	lines := make([]string, 0, len(chars))
	for _, ch := range chars {
		if ch.Role != "" {
			lines = append(lines, fmt.Sprintf("- %s (%s): %s", ch.Name, ch.Role, ch.Description))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", ch.Name, ch.Description))
	}
	return strings.Join(lines, "\n")
}

func musicalTypeLabel(t model.MusicalType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}
