package pipeline

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"storymaker/internal/domain"
)

// MaxReferenceImages caps how many photos are attached to each image prompt.
const MaxReferenceImages = 5

// DecodeReferences turns the base64 (or data URL) photos of every character
// into reference images. Undecodable entries are rejected.
func DecodeReferences(characters []domain.Character) ([]ReferenceImage, error) {
	var refs []ReferenceImage
	for ci, c := range characters {
		for ii, raw := range c.Images {
			ref, err := decodeReference(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: characters[%d].images[%d]: %v", domain.ErrInvalidRequest, ci, ii, err)
			}
			refs = append(refs, ref)
		}
	}
	if len(refs) > MaxReferenceImages {
		refs = refs[:MaxReferenceImages]
	}
	return refs, nil
}

func decodeReference(raw string) (ReferenceImage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ReferenceImage{}, fmt.Errorf("empty image")
	}
	declared := ""
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ","); idx >= 0 {
			header := raw[len("data:"):idx]
			declared = strings.TrimSuffix(header, ";base64")
			raw = raw[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(raw)
		if err != nil {
			return ReferenceImage{}, fmt.Errorf("decode base64: %w", err)
		}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ReferenceImage{}, fmt.Errorf("decode image: %w", err)
	}
	mime := declared
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/" + format
	}
	return ReferenceImage{MIME: mime, Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}
