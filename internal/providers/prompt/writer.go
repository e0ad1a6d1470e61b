package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storymaker/internal/domain"
	"storymaker/internal/pipeline"
	"storymaker/internal/providers/genai"
)

const writerTemperature = 0.9

// TextGenerator is the part of the Gemini client the writer needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, req genai.TextRequest) (string, error)
	Synthetic() bool
}

// StoryWriter produces story structures with the text model.
type StoryWriter struct {
	client TextGenerator
}

func NewStoryWriter(client TextGenerator) *StoryWriter {
	return &StoryWriter{client: client}
}

// GenerateStructure asks the model for a title, cover prompt and the story
// parts. Without an API key a deterministic local story is returned.
func (w *StoryWriter) GenerateStructure(ctx context.Context, req pipeline.StructureRequest) (*domain.Structure, error) {
	if w.client.Synthetic() {
		return syntheticStructure(req), nil
	}
	text, err := w.client.GenerateText(ctx, genai.TextRequest{
		Prompt:      BuildStructurePrompt(req),
		Temperature: writerTemperature,
		JSON:        true,
		Schema:      structureSchema,
	})
	if errors.Is(err, genai.ErrNoAPIKey) {
		return syntheticStructure(req), nil
	}
	if err != nil {
		return nil, err
	}
	return parseStructure(text)
}

// BuildStructurePrompt renders the narrative instruction for req.
func BuildStructurePrompt(req pipeline.StructureRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Write an epic, immersive story divided into EXACTLY %d PARTS.\n", domain.PartsCount)
	fmt.Fprintf(sb, "PROTAGONISTS: %s\n", req.Names)
	fmt.Fprintf(sb, "THEME/DESCRIPTION: %s\n", coalesce(req.Premise, "An epic adventure with "+req.Names))
	universe := coalesce(req.UniverseName, "Original world")
	if style := strings.TrimSpace(req.UniverseStyle); style != "" {
		universe += " - " + style
	}
	fmt.Fprintf(sb, "UNIVERSE: %s\n", universe)
	if lang := languageName(req.Locale); lang != "" {
		fmt.Fprintf(sb, "Write the title and story text in %s. Keep image prompts in English.\n", lang)
	}
	fmt.Fprintf(sb, "OUTPUT: a title, a detailed prompt for a cinematic wide (%s) cover image, and a list of %d lists [story_text, image_prompt].\n", domain.CoverAspectRatio, domain.PartsCount)
	fmt.Fprintf(sb, "The protagonists must be %s.\n", req.Names)
	sb.WriteString(`Respond strictly with JSON: {"title":string,"cover_prompt":string,"parts":[[string,string]]}`)
	return sb.String()
}

var syntheticBeats = [domain.PartsCount]string{
	"%s arrive in %s, where something is quietly wrong.",
	"A strange clue pulls %s deeper into %s.",
	"In the heart of %s, %s face the danger that has been waiting for them.",
	"%s turn the tide, and %s changes around them.",
	"With the adventure over, %s look back on %s one last time.",
}

func syntheticStructure(req pipeline.StructureRequest) *domain.Structure {
	names := coalesce(req.Names, "Our heroes")
	world := coalesce(req.UniverseName, req.UniverseStyle, "a distant land")
	title := cases.Title(language.Und).String(fmt.Sprintf("%s and the secret of %s", names, world))
	s := &domain.Structure{
		Title:       title,
		CoverPrompt: fmt.Sprintf("Cinematic wide shot of %s in %s, %s", names, world, coalesce(req.UniverseStyle, "epic lighting")),
	}
	for i, beat := range syntheticBeats {
		var text string
		if i == 2 {
			text = fmt.Sprintf(beat, world, names)
		} else {
			text = fmt.Sprintf(beat, names, world)
		}
		s.Parts = append(s.Parts, domain.Part{
			Text:        text,
			ImagePrompt: fmt.Sprintf("Scene %d: %s", i+1, text),
		})
	}
	return s
}

var _ pipeline.StructureProducer = (*StoryWriter)(nil)
