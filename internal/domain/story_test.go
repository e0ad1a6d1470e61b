package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func validStructure() *Structure {
	s := &Structure{Title: "The Vault", CoverPrompt: "a vault at dusk"}
	for i := 0; i < PartsCount; i++ {
		s.Parts = append(s.Parts, Part{Text: "chapter", ImagePrompt: "scene"})
	}
	return s
}

func TestStructureValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Structure)
		ok     bool
	}{
		{name: "valid", mutate: func(*Structure) {}, ok: true},
		{name: "missing title", mutate: func(s *Structure) { s.Title = " " }},
		{name: "missing cover", mutate: func(s *Structure) { s.CoverPrompt = "" }},
		{name: "four parts", mutate: func(s *Structure) { s.Parts = s.Parts[:4] }},
		{name: "six parts", mutate: func(s *Structure) { s.Parts = append(s.Parts, Part{Text: "x", ImagePrompt: "y"}) }},
		{name: "empty prompt", mutate: func(s *Structure) { s.Parts[2].ImagePrompt = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validStructure()
			tc.mutate(s)
			err := s.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("Validate error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestPartDecodesPairsAndObjects(t *testing.T) {
	raw := `{"title":"t","cover_prompt":"c","parts":[["text one","prompt one"],{"text":"text two","image_prompt":"prompt two"}]}`
	var s Structure
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if len(s.Parts) != 2 || s.Parts[0].ImagePrompt != "prompt one" || s.Parts[1].Text != "text two" {
		t.Fatalf("unexpected parts: %+v", s.Parts)
	}
	out, err := json.Marshal(s.Parts[0])
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if string(out) != `["text one","prompt one"]` {
		t.Fatalf("Marshal = %s", out)
	}
	if err := json.Unmarshal([]byte(`["only one"]`), &s.Parts[0]); err == nil {
		t.Fatal("expected error for single entry part")
	}
}

func TestStoryRequestDefaults(t *testing.T) {
	req := StoryRequest{
		Characters: []Character{{Name: "Ana"}, {Name: " Rui "}},
		Universe:   Universe{Name: "Lisbon"},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if got := req.Premise(); got != "An epic adventure with Ana, Rui" {
		t.Fatalf("Premise = %q", got)
	}
	if err := (StoryRequest{Universe: Universe{Name: "x"}}).Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
