package story

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"storymaker/internal/domain"
	"storymaker/internal/pipeline"
	"storymaker/internal/storage"
)

func newTestStore(t *testing.T, index Index) *Store {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	ids := []string{"aaaa1111", "bbbb2222", "cccc3333"}
	n := 0
	store, err := NewStore(files, Options{Index: index, NewID: func() string {
		id := ids[n%len(ids)]
		n++
		return id
	}})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store
}

func saveStory(t *testing.T, s *Store, title string, at time.Time) *domain.StoryRecord {
	t.Helper()
	ctx := context.Background()
	h, err := s.CreateStory(ctx, title, at)
	if err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}
	art := &pipeline.Artifact{Data: []byte("png-bytes"), MIME: "image/png"}
	if err := s.SaveImage(ctx, h, "cover", art); err != nil {
		t.Fatalf("SaveImage returned error: %v", err)
	}
	rec := &domain.StoryRecord{ID: h.ID, Folder: h.Folder, CreatedAt: at, Title: title, Images: map[string]string{"cover": art.URL}}
	if err := s.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord returned error: %v", err)
	}
	return rec
}

func TestStoreFolderNamingAndURLs(t *testing.T) {
	s := newTestStore(t, nil)
	at := time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC)
	rec := saveStory(t, s, "A Jornada: Mágica / Final?", at)
	if rec.ID != "20250309_140507_aaaa1111" {
		t.Fatalf("id = %q", rec.ID)
	}
	if rec.Folder != "20250309_140507_aaaa1111_A_Jornada_Magica__Final" {
		t.Fatalf("folder = %q", rec.Folder)
	}
	want := "/historias/" + rec.Folder + "/cover.png"
	if rec.Images["cover"] != want {
		t.Fatalf("cover url = %q, want %q", rec.Images["cover"], want)
	}
}

func TestStoreListNewestFirstAndGetByPrefix(t *testing.T) {
	s := newTestStore(t, nil)
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	older := saveStory(t, s, "Old", base)
	newer := saveStory(t, s, "New", base.Add(time.Hour))

	records, err := s.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 2 || records[0].ID != newer.ID || records[1].ID != older.ID {
		t.Fatalf("unexpected order %+v", records)
	}

	got, err := s.Get(context.Background(), older.ID[:20])
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Title != "Old" {
		t.Fatalf("title = %q", got.Title)
	}
	for _, bad := range []string{"", "2030", "../x"} {
		if _, err := s.Get(context.Background(), bad); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get(%q) err = %v, want ErrNotFound", bad, err)
		}
	}
}

func TestStoreArchive(t *testing.T) {
	s := newTestStore(t, nil)
	rec := saveStory(t, s, "Zip Me", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	raw, got, err := s.Archive(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("archive record id = %q", got.ID)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"/cover.png", "/story.json", "/index.html", "/dados.json"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("archive entries = %v, missing %s", names, want)
		}
	}
}

func pngOfSize(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestStoreWritesWebCopies(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	h, err := s.CreateStory(ctx, "Big", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}
	tests := []struct {
		id           string
		w, h         int
		wantW, wantH int
	}{
		{id: "cover", w: 2400, h: 1350, wantW: 1200, wantH: 675},
		{id: "part_1", w: 1000, h: 3000, wantW: 400, wantH: 1200},
		{id: "part_2", w: 300, h: 450, wantW: 300, wantH: 450},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			art := &pipeline.Artifact{Data: pngOfSize(t, tc.w, tc.h), MIME: "image/png"}
			if err := s.SaveImage(ctx, h, tc.id, art); err != nil {
				t.Fatalf("SaveImage returned error: %v", err)
			}
			raw, err := s.files.Read(ctx, h.Folder+"/web/"+tc.id+".jpg")
			if err != nil {
				t.Fatalf("web copy missing: %v", err)
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("decode web copy: %v", err)
			}
			if cfg.Width != tc.wantW || cfg.Height != tc.wantH {
				t.Fatalf("web copy = %dx%d, want %dx%d", cfg.Width, cfg.Height, tc.wantW, tc.wantH)
			}
			original, err := s.files.Read(ctx, art.StorageKey)
			if err != nil || !bytes.Equal(original, art.Data) {
				t.Fatalf("original changed: %v", err)
			}
		})
	}
}

func TestStoreSkipsWebCopyForUndecodableImage(t *testing.T) {
	s := newTestStore(t, nil)
	rec := saveStory(t, s, "Opaque", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if _, err := s.files.Read(context.Background(), rec.Folder+"/web/cover.jpg"); err == nil {
		t.Fatal("web copy written for bytes that are not an image")
	}
}

func TestStoreRendersBook(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	at := time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC)
	h, err := s.CreateStory(ctx, "Moon <Run>", at)
	if err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}
	cover := &pipeline.Artifact{Data: pngOfSize(t, 64, 36), MIME: "image/png"}
	if err := s.SaveImage(ctx, h, "cover", cover); err != nil {
		t.Fatalf("SaveImage returned error: %v", err)
	}
	part := &pipeline.Artifact{Data: []byte("not decodable"), MIME: "image/png"}
	if err := s.SaveImage(ctx, h, "part_1", part); err != nil {
		t.Fatalf("SaveImage returned error: %v", err)
	}
	rec := &domain.StoryRecord{
		ID:         h.ID,
		Folder:     h.Folder,
		CreatedAt:  at,
		Title:      "Moon <Run>",
		Parts:      []domain.Part{{Text: "Ana looked up.", ImagePrompt: "a moon"}, {Text: "She ran.", ImagePrompt: "running"}},
		Images:     map[string]string{"cover": cover.URL, "part_1": part.URL},
		Characters: []domain.CharacterRef{{Name: "Ana"}, {Name: "Rui"}},
		Universe:   domain.Universe{Name: "Lua"},
		Locale:     "pt-BR",
	}
	if err := s.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord returned error: %v", err)
	}

	page, err := s.files.Read(ctx, h.Folder+"/"+BookFile)
	if err != nil {
		t.Fatalf("index.html missing: %v", err)
	}
	html := string(page)
	for _, want := range []string{
		`<html lang="pt">`,
		"Moon &lt;Run&gt;",
		`src="web/cover.jpg"`,
		`src="part_1.png"`,
		"Capítulo 2",
		"Protagonizado por Ana, Rui",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("index.html missing %q", want)
		}
	}
	if strings.Contains(html, "Moon <Run>") {
		t.Fatal("title was not escaped")
	}

	raw, err := s.files.Read(ctx, h.Folder+"/"+BookDataFile)
	if err != nil {
		t.Fatalf("dados.json missing: %v", err)
	}
	var data bookData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode dados.json: %v", err)
	}
	if data.Title != rec.Title || len(data.Pages) != 2 || data.Pages[1].Image != "" || data.Cover != "web/cover.jpg" {
		t.Fatalf("book data = %+v", data)
	}
}

func TestStoreDiscardStory(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	kept := saveStory(t, s, "Kept", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	h, err := s.CreateStory(ctx, "Dropped", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}
	if err := s.SaveImage(ctx, h, "cover", &pipeline.Artifact{Data: pngOfSize(t, 8, 8), MIME: "image/png"}); err != nil {
		t.Fatalf("SaveImage returned error: %v", err)
	}
	if err := s.DiscardStory(ctx, h); err != nil {
		t.Fatalf("DiscardStory returned error: %v", err)
	}
	entries, err := s.files.List(ctx, "")
	if err != nil || len(entries) != 1 || entries[0].Name != kept.Folder {
		t.Fatalf("folders after discard = %+v, %v", entries, err)
	}
	if err := s.DiscardStory(ctx, pipeline.StoryHandle{}); err != nil {
		t.Fatalf("empty handle: %v", err)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct{ w, h, wantW, wantH int }{
		{1200, 1200, 1200, 1200},
		{4000, 10, 1200, 3},
		{10, 4000, 3, 1200},
		{5000, 1, 1200, 1},
	}
	for _, tc := range tests {
		if w, h := fitWithin(tc.w, tc.h, WebMaxSide); w != tc.wantW || h != tc.wantH {
			t.Fatalf("fitWithin(%d, %d) = %dx%d, want %dx%d", tc.w, tc.h, w, h, tc.wantW, tc.wantH)
		}
	}
}

type fakeIndex struct {
	upserts  int
	listErr  error
	records  []domain.StoryRecord
	findErr  error
	upsertEr error
}

func (f *fakeIndex) Upsert(ctx context.Context, rec *domain.StoryRecord) error {
	f.upserts++
	return f.upsertEr
}

func (f *fakeIndex) List(ctx context.Context, limit int) ([]domain.StoryRecord, error) {
	return f.records, f.listErr
}

func (f *fakeIndex) FindByPrefix(ctx context.Context, prefix string) (*domain.StoryRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return &f.records[0], nil
}

func TestStoreUsesIndexAndFallsBack(t *testing.T) {
	idx := &fakeIndex{upsertEr: errors.New("db down"), records: []domain.StoryRecord{{ID: "indexed"}}}
	s := newTestStore(t, idx)
	rec := saveStory(t, s, "Indexed", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if idx.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", idx.upserts)
	}

	records, err := s.List(context.Background(), 10)
	if err != nil || len(records) != 1 || records[0].ID != "indexed" {
		t.Fatalf("index list = %+v, %v", records, err)
	}

	idx.listErr = errors.New("db down")
	idx.findErr = domain.ErrNotFound
	records, err = s.List(context.Background(), 10)
	if err != nil || len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("fallback list = %+v, %v", records, err)
	}
	got, err := s.Get(context.Background(), rec.ID)
	if err != nil || got.ID != rec.ID {
		t.Fatalf("fallback get = %+v, %v", got, err)
	}
}

func TestSanitizeTitle(t *testing.T) {
	cases := map[string]string{
		"  Hello World  ":       "Hello_World",
		`a<b>c:d"e|f?g*h`:       "abcdefgh",
		"Ação e Coração":        "Acao_e_Coracao",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for in, want := range cases {
		if got := SanitizeTitle(in); got != want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
