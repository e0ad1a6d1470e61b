package image

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storymaker/internal/domain"
	"storymaker/internal/pipeline"
	"storymaker/internal/providers/genai"
)

type fakeGenerator struct {
	captured genai.ImageRequest
	asset    *genai.ImageAsset
	err      error
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error) {
	f.captured = req
	return f.asset, f.err
}

func TestIllustratorAddsIdentityInstruction(t *testing.T) {
	gen := &fakeGenerator{asset: &genai.ImageAsset{Format: "image/png", Data: []byte("png"), Width: 2, Height: 3}}
	art, err := NewIllustrator(gen).GenerateImage(context.Background(), pipeline.ImageRequest{
		Prompt:      "They climb the tower",
		AspectRatio: domain.PartAspectRatio,
		Style:       "Ghibli watercolor",
		Names:       "Ana, Rui",
		References:  []pipeline.ReferenceImage{{MIME: "image/jpeg", Data: []byte("a")}, {MIME: "image/png", Data: []byte("b")}},
	})
	if err != nil {
		t.Fatalf("GenerateImage returned error: %v", err)
	}
	p := gen.captured.Prompt
	if !strings.HasPrefix(p, "They climb the tower") {
		t.Fatalf("prompt should start with the scene: %q", p)
	}
	for _, want := range []string{"attached photos", "(Ana, Rui)", "Universe: Ghibli watercolor."} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt %q missing %q", p, want)
		}
	}
	if len(gen.captured.References) != 2 || gen.captured.AspectRatio != "2:3" {
		t.Fatalf("unexpected request %+v", gen.captured)
	}
	if art.MIME != "image/png" || art.Height != 3 {
		t.Fatalf("unexpected artifact %+v", art)
	}
}

func TestIllustratorEmptyImage(t *testing.T) {
	_, err := NewIllustrator(&fakeGenerator{asset: &genai.ImageAsset{}}).GenerateImage(context.Background(), pipeline.ImageRequest{Prompt: "x"})
	if !errors.Is(err, domain.ErrNoImageInResponse) {
		t.Fatalf("err = %v, want ErrNoImageInResponse", err)
	}
}

func TestIllustratorPassesErrors(t *testing.T) {
	_, err := NewIllustrator(&fakeGenerator{err: domain.ErrProvider}).GenerateImage(context.Background(), pipeline.ImageRequest{Prompt: "x"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestBuildScenePromptWithoutReferences(t *testing.T) {
	p := BuildScenePrompt("", "", "", 0)
	if strings.Contains(p, "attached photos") || strings.Contains(p, "Universe:") {
		t.Fatalf("unexpected prompt %q", p)
	}
}
