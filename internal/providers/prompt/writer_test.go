package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storymaker/internal/domain"
	"storymaker/internal/pipeline"
	"storymaker/internal/providers/genai"
)

type fakeText struct {
	synthetic bool
	reply     string
	err       error
	captured  genai.TextRequest
}

func (f *fakeText) GenerateText(ctx context.Context, req genai.TextRequest) (string, error) {
	f.captured = req
	return f.reply, f.err
}

func (f *fakeText) Synthetic() bool { return f.synthetic }

const validReply = "```json\n" + `{"title":"The Heist","cover_prompt":"wide shot","parts":[["a","pa"],["b","pb"],["c","pc"],["d","pd"],["e","pe"]]}` + "\n```"

func TestStoryWriterParsesFencedJSON(t *testing.T) {
	text := &fakeText{reply: validReply}
	s, err := NewStoryWriter(text).GenerateStructure(context.Background(), pipeline.StructureRequest{Names: "Ana, Rui", UniverseName: "Lisbon", Locale: "pt-BR"})
	if err != nil {
		t.Fatalf("GenerateStructure returned error: %v", err)
	}
	if s.Title != "The Heist" || len(s.Parts) != domain.PartsCount || s.Parts[4].ImagePrompt != "pe" {
		t.Fatalf("unexpected structure %+v", s)
	}
	if !text.captured.JSON || text.captured.Schema == nil {
		t.Fatal("structure request should use JSON mode with a schema")
	}
	if !strings.Contains(text.captured.Prompt, "Ana, Rui") || !strings.Contains(text.captured.Prompt, "Brazilian Portuguese") {
		t.Fatalf("prompt missing names or language: %s", text.captured.Prompt)
	}
}

func TestStoryWriterRejectsWrongShape(t *testing.T) {
	cases := map[string]string{
		"four parts":    `{"title":"T","cover_prompt":"c","parts":[["a","b"],["a","b"],["a","b"],["a","b"]]}`,
		"missing title": `{"cover_prompt":"c","parts":[["a","b"],["a","b"],["a","b"],["a","b"],["a","b"]]}`,
		"not json":      "I cannot help with that",
		"short pair":    `{"title":"T","cover_prompt":"c","parts":[["a"],["a","b"],["a","b"],["a","b"],["a","b"]]}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewStoryWriter(&fakeText{reply: reply}).GenerateStructure(context.Background(), pipeline.StructureRequest{Names: "Ana"})
			if !errors.Is(err, domain.ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestStoryWriterPassesProviderErrors(t *testing.T) {
	_, err := NewStoryWriter(&fakeText{err: domain.ErrProvider}).GenerateStructure(context.Background(), pipeline.StructureRequest{Names: "Ana"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestStoryWriterSyntheticStructureIsValid(t *testing.T) {
	s, err := NewStoryWriter(&fakeText{synthetic: true}).GenerateStructure(context.Background(), pipeline.StructureRequest{Names: "ana", UniverseName: "the moon"})
	if err != nil {
		t.Fatalf("GenerateStructure returned error: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("synthetic structure invalid: %v", err)
	}
	if s.Title != "Ana And The Secret Of The Moon" {
		t.Fatalf("title = %q", s.Title)
	}
}

func TestLanguageName(t *testing.T) {
	cases := map[string]string{"": "", "en": "English", "es": "Spanish", "not a tag!": ""}
	for in, want := range cases {
		if got := languageName(in); got != want {
			t.Errorf("languageName(%q) = %q, want %q", in, got, want)
		}
	}
}
