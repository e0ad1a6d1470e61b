package image

import (
	"context"
	"fmt"

	"storymaker/internal/domain"
	"storymaker/internal/pipeline"
	"storymaker/internal/providers/genai"
)

// Generator is the part of the Gemini client used for illustrations.
type Generator interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
}

// Illustrator renders story illustrations with the character photos as
// references.
type Illustrator struct {
	client Generator
}

func NewIllustrator(client Generator) *Illustrator {
	return &Illustrator{client: client}
}

func (g *Illustrator) GenerateImage(ctx context.Context, req pipeline.ImageRequest) (*pipeline.Artifact, error) {
	refs := make([]genai.InlineImage, 0, len(req.References))
	for _, r := range req.References {
		refs = append(refs, genai.InlineImage{MIME: r.MIME, Data: r.Data})
	}
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      BuildScenePrompt(req.Prompt, req.Names, req.Style, len(refs)),
		AspectRatio: req.AspectRatio,
		References:  refs,
	})
	if err != nil {
		return nil, err
	}
	if asset == nil || len(asset.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", domain.ErrNoImageInResponse)
	}
	return &pipeline.Artifact{
		Data:   asset.Data,
		MIME:   asset.Format,
		Width:  asset.Width,
		Height: asset.Height,
	}, nil
}

var _ pipeline.ImageProducer = (*Illustrator)(nil)
