package story

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"image"
	"image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/language"

	"storymaker/internal/domain"
)

const (
	BookFile     = "index.html"
	BookDataFile = "dados.json"
	WebDir       = "web"
	// WebMaxSide bounds the longest side of the web copies.
	WebMaxSide = 1200
	webQuality = 80
)

//go:embed book.html.tmpl
var bookSource string

var bookTemplate = template.Must(template.New("book").Parse(bookSource))

type bookLabels struct {
	Chapter, Previous, Next, Starring string
}

var labelsByLanguage = map[string]bookLabels{
	"en": {Chapter: "Chapter", Previous: "Previous", Next: "Next", Starring: "Starring"},
	"pt": {Chapter: "Capítulo", Previous: "Anterior", Next: "Próximo", Starring: "Protagonizado por"},
	"es": {Chapter: "Capítulo", Previous: "Anterior", Next: "Siguiente", Starring: "Protagonizada por"},
}

type bookPage struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Prompt string `json:"image_prompt"`
	Image  string `json:"image,omitempty"`
}

// bookData is what index.html is rendered from and what dados.json holds.
// Image paths are relative to the story folder.
type bookData struct {
	Lang     string     `json:"lang"`
	Title    string     `json:"title"`
	Cast     string     `json:"cast"`
	Universe string     `json:"universe"`
	Cover    string     `json:"cover,omitempty"`
	Pages    []bookPage `json:"pages"`
	Labels   bookLabels `json:"-"`
}

// writeBook renders the browsable book next to story.json.
func (s *Store) writeBook(ctx context.Context, rec *domain.StoryRecord) error {
	data := s.bookFor(ctx, rec)
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("story: encode book data: %w", err)
	}
	if _, err := s.files.Write(ctx, path.Join(rec.Folder, BookDataFile), raw); err != nil {
		return err
	}
	var page bytes.Buffer
	if err := bookTemplate.Execute(&page, data); err != nil {
		return fmt.Errorf("story: render book: %w", err)
	}
	_, err = s.files.Write(ctx, path.Join(rec.Folder, BookFile), page.Bytes())
	return err
}

func (s *Store) bookFor(ctx context.Context, rec *domain.StoryRecord) bookData {
	web := map[string]bool{}
	if entries, err := s.files.List(ctx, path.Join(rec.Folder, WebDir)); err == nil {
		for _, e := range entries {
			web[e.Name] = true
		}
	}
	// Prefer the web copy; fall back to the original file.
	src := func(imageID string) string {
		url, ok := rec.Images[imageID]
		if !ok || url == "" {
			return ""
		}
		if name := webName(imageID); web[name] {
			return WebDir + "/" + name
		}
		return path.Base(url)
	}

	names := make([]string, 0, len(rec.Characters))
	for _, c := range rec.Characters {
		if n := strings.TrimSpace(c.Name); n != "" {
			names = append(names, n)
		}
	}
	universe := rec.Universe.Name
	if universe == "" {
		universe = rec.Universe.Style
	}
	lang := bookLanguage(rec.Locale)
	data := bookData{
		Lang:     lang,
		Title:    rec.Title,
		Cast:     strings.Join(names, ", "),
		Universe: universe,
		Cover:    src("cover"),
		Labels:   labelsByLanguage[lang],
	}
	for i, p := range rec.Parts {
		data.Pages = append(data.Pages, bookPage{
			Number: i + 1,
			Text:   p.Text,
			Prompt: p.ImagePrompt,
			Image:  src(fmt.Sprintf("part_%d", i+1)),
		})
	}
	return data
}

func bookLanguage(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	if _, ok := labelsByLanguage[base.String()]; ok {
		return base.String()
	}
	return "en"
}

func webName(imageID string) string { return imageID + ".jpg" }

// writeWebCopy stores a JPEG no larger than WebMaxSide under web/.
func (s *Store) writeWebCopy(ctx context.Context, folder, imageID string, original []byte) error {
	data, err := optimizeForWeb(original)
	if err != nil {
		return err
	}
	_, err = s.files.Write(ctx, path.Join(folder, WebDir, webName(imageID)), data)
	return err
}

// optimizeForWeb shrinks an image to fit WebMaxSide, keeping its aspect
// ratio, and re-encodes it as JPEG. Smaller images are never enlarged.
func optimizeForWeb(original []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("story: decode image: %w", err)
	}
	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), WebMaxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: webQuality}); err != nil {
		return nil, fmt.Errorf("story: encode web image: %w", err)
	}
	return out.Bytes(), nil
}

func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
