package genai

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
)

func (c *Client) syntheticImage(req ImageRequest) *ImageAsset {
	seed := deterministicSeed(c.imageModel, req.Prompt, req.AspectRatio, len(req.References))
	width, height := normalizeAspect(req.AspectRatio)
	data := renderSyntheticImage(width, height, seed)

	c.logger.Debug().
		Str("model", c.imageModel).
		Str("aspect_ratio", req.AspectRatio).
		Str("seed", seed).
		Msg("genai: generated synthetic image")

	return &ImageAsset{Format: "image/png", Width: width, Height: height, Data: data, Synthetic: true}
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	band := max(8, height/12)
	for y := 0; y < height; y += band * 2 {
		stripe := image.Rect(0, y, width, min(height, y+band))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "336699"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: parseHexByte(segment[0:2]), G: parseHexByte(segment[2:4]), B: parseHexByte(segment[4:6]), A: 255}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// normalizeAspect maps an aspect ratio to synthetic output dimensions. The
// long side is kept small since these images only stand in for real output.
func normalizeAspect(aspect string) (int, int) {
	const long = 512
	parts := strings.Split(strings.TrimSpace(aspect), ":")
	if len(parts) != 2 {
		return long, long
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		return long, long
	}
	if a >= b {
		return long, long * b / a
	}
	return long * a / b, long
}
