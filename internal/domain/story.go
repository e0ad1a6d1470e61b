package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PartsCount is the number of (text, image prompt) pairs in every story.
const PartsCount = 5

const (
	CoverAspectRatio = "16:9"
	PartAspectRatio  = "2:3"
)

// Character is a protagonist together with the reference photos the image
// model must preserve.
type Character struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

// Universe describes the setting and visual style of a story.
type Universe struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Style string `json:"style" yaml:"style"`
}

// StoryRequest is the payload accepted by the create-story endpoint.
type StoryRequest struct {
	Characters  []Character `json:"characters"`
	Universe    Universe    `json:"universe"`
	Description string      `json:"description,omitempty"`
	Locale      string      `json:"locale,omitempty"`
}

// Validate checks the minimum contract before any provider call is made.
func (r StoryRequest) Validate() error {
	if len(r.Characters) == 0 {
		return fmt.Errorf("%w: at least one character is required", ErrInvalidRequest)
	}
	for i, c := range r.Characters {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: characters[%d].name is required", ErrInvalidRequest, i)
		}
	}
	if strings.TrimSpace(r.Universe.Name) == "" && strings.TrimSpace(r.Universe.Style) == "" {
		return fmt.Errorf("%w: universe name or style is required", ErrInvalidRequest)
	}
	return nil
}

// Names joins the character names the way they are shown to the model.
func (r StoryRequest) Names() string {
	names := make([]string, 0, len(r.Characters))
	for _, c := range r.Characters {
		if name := strings.TrimSpace(c.Name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// Premise returns the description or a default built from the names.
func (r StoryRequest) Premise() string {
	if d := strings.TrimSpace(r.Description); d != "" {
		return d
	}
	return fmt.Sprintf("An epic adventure with %s", r.Names())
}

// Part is one chapter: narrative text plus the prompt for its illustration.
// It is encoded as a two element array to match the model output.
type Part struct {
	Text        string
	ImagePrompt string
}

func (p Part) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Text, p.ImagePrompt})
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("part must have exactly 2 entries, got %d", len(pair))
		}
		p.Text, p.ImagePrompt = pair[0], pair[1]
		return nil
	}
	var obj struct {
		Text        string `json:"text"`
		ImagePrompt string `json:"image_prompt"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode part: %w", err)
	}
	p.Text, p.ImagePrompt = obj.Text, obj.ImagePrompt
	return nil
}

// Structure is the narrative skeleton produced by the text model.
type Structure struct {
	Title       string `json:"title"`
	CoverPrompt string `json:"cover_prompt"`
	Parts       []Part `json:"parts"`
}

// Validate enforces the exact shape: title, cover prompt and PartsCount
// complete parts. Violations wrap ErrMalformedResponse.
func (s *Structure) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: empty structure", ErrMalformedResponse)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: title missing", ErrMalformedResponse)
	}
	if strings.TrimSpace(s.CoverPrompt) == "" {
		return fmt.Errorf("%w: cover_prompt missing", ErrMalformedResponse)
	}
	if len(s.Parts) != PartsCount {
		return fmt.Errorf("%w: expected %d parts, got %d", ErrMalformedResponse, PartsCount, len(s.Parts))
	}
	for i, p := range s.Parts {
		if strings.TrimSpace(p.Text) == "" || strings.TrimSpace(p.ImagePrompt) == "" {
			return fmt.Errorf("%w: part %d incomplete", ErrMalformedResponse, i+1)
		}
	}
	return nil
}

// CharacterRef is the persisted view of a character, without photos.
type CharacterRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StoryRecord is the finalized story handed to persistence and templating.
type StoryRecord struct {
	ID          string            `json:"id"`
	Folder      string            `json:"folder"`
	CreatedAt   time.Time         `json:"createdAt"`
	Title       string            `json:"title"`
	CoverPrompt string            `json:"cover_prompt"`
	Parts       []Part            `json:"parts"`
	Images      map[string]string `json:"images"`
	Universe    Universe          `json:"universe"`
	Characters  []CharacterRef    `json:"characters"`
	TotalTime   float64           `json:"totalTime"`
	Succeeded   int               `json:"imagesSucceeded"`
	Failed      int               `json:"imagesFailed"`
	Locale      string            `json:"locale,omitempty"`
}

// CharacterRefs strips photos from the request characters.
func (r StoryRequest) CharacterRefs() []CharacterRef {
	out := make([]CharacterRef, 0, len(r.Characters))
	for _, c := range r.Characters {
		out = append(out, CharacterRef{ID: c.ID, Name: c.Name})
	}
	return out
}
