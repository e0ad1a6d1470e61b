package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"storymaker/internal/domain"
	"storymaker/internal/infra"
	"storymaker/internal/pipeline"
	"storymaker/internal/storage"
	"storymaker/pkg/zip"
)

const (
	RecordFile       = "story.json"
	DefaultURLPrefix = "/historias"
	maxTitleLength   = 50
	folderTimeLayout = "20060102_150405"
)

// Index is an optional queryable copy of the saved records.
type Index interface {
	Upsert(ctx context.Context, rec *domain.StoryRecord) error
	List(ctx context.Context, limit int) ([]domain.StoryRecord, error)
	FindByPrefix(ctx context.Context, prefix string) (*domain.StoryRecord, error)
}

// Options configures a Store.
type Options struct {
	URLPrefix string
	Index     Index
	Logger    *infra.Logger
	NewID     func() string
}

// Store keeps one folder per story holding the images, story.json and the
// rendered book. The folder is the source of truth; the index only speeds up
// listing.
type Store struct {
	files     *storage.FileStore
	urlPrefix string
	index     Index
	logger    *infra.Logger
	newID     func() string
}

// NewStore wraps files. A nil index keeps everything on disk.
func NewStore(files *storage.FileStore, opts Options) (*Store, error) {
	if files == nil {
		return nil, errors.New("story: file store is required")
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(opts.URLPrefix), "/")
	if prefix == "/" {
		prefix = DefaultURLPrefix
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] }
	}
	return &Store{files: files, urlPrefix: prefix, index: opts.Index, logger: logger, newID: newID}, nil
}

// URLPrefix is the public path the story folders are served under.
func (s *Store) URLPrefix() string { return s.urlPrefix }

// CreateStory makes the folder <yyyymmdd_hhmmss>_<id8>_<title>. The story id
// is the folder name without the title.
func (s *Store) CreateStory(ctx context.Context, title string, createdAt time.Time) (pipeline.StoryHandle, error) {
	id := fmt.Sprintf("%s_%s", createdAt.Format(folderTimeLayout), s.newID())
	folder := id
	if clean := SanitizeTitle(title); clean != "" {
		folder += "_" + clean
	}
	if _, err := s.files.MkdirAll(ctx, folder); err != nil {
		return pipeline.StoryHandle{}, err
	}
	s.logger.Debug().Str("story_id", id).Str("folder", folder).Msg("story: folder created")
	return pipeline.StoryHandle{ID: id, Folder: folder}, nil
}

// SaveImage writes the artifact as <imageID>.<ext> and fills its storage key
// and public URL.
func (s *Store) SaveImage(ctx context.Context, h pipeline.StoryHandle, imageID string, a *pipeline.Artifact) error {
	if a == nil || len(a.Data) == 0 {
		return fmt.Errorf("story: empty image %s", imageID)
	}
	name := imageID + extensionFor(a.MIME)
	key, err := s.files.Write(ctx, path.Join(h.Folder, name), a.Data)
	if err != nil {
		return err
	}
	a.StorageKey = key
	a.URL = s.urlPrefix + "/" + key
	if err := s.writeWebCopy(ctx, h.Folder, imageID, a.Data); err != nil {
		s.logger.Warn().Err(err).Str("image_id", imageID).Msg("story: web copy skipped")
	}
	return nil
}

// DiscardStory removes the folder of a story that will never be finalized.
func (s *Store) DiscardStory(ctx context.Context, h pipeline.StoryHandle) error {
	if strings.TrimSpace(h.Folder) == "" {
		return nil
	}
	if err := s.files.RemoveAll(ctx, h.Folder); err != nil {
		return err
	}
	s.logger.Debug().Str("story_id", h.ID).Str("folder", h.Folder).Msg("story: folder discarded")
	return nil
}

// SaveRecord writes story.json, renders the book (index.html and dados.json)
// and mirrors the record into the index. Book and index failures are logged
// and do not fail the story.
func (s *Store) SaveRecord(ctx context.Context, rec *domain.StoryRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("story: encode record: %w", err)
	}
	if _, err := s.files.Write(ctx, path.Join(rec.Folder, RecordFile), data); err != nil {
		return err
	}
	if err := s.writeBook(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("story_id", rec.ID).Msg("story: book not written")
	}
	if s.index != nil {
		if err := s.index.Upsert(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("story_id", rec.ID).Msg("story: index upsert failed")
		}
	}
	return nil
}

// List returns saved stories, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.StoryRecord, error) {
	if s.index != nil {
		records, err := s.index.List(ctx, limit)
		if err == nil {
			return records, nil
		}
		s.logger.Warn().Err(err).Msg("story: index list failed; scanning folders")
	}
	return s.scan(ctx, limit)
}

func (s *Store) scan(ctx context.Context, limit int) ([]domain.StoryRecord, error) {
	entries, err := s.files.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var records []domain.StoryRecord
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		rec, err := s.readRecord(ctx, e.Name)
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("folder", e.Name).Msg("story: unreadable record skipped")
			continue
		}
		records = append(records, *rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Get returns the story whose folder starts with prefix. Folders sort by
// creation time, so the newest match wins.
func (s *Store) Get(ctx context.Context, prefix string) (*domain.StoryRecord, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || strings.ContainsAny(prefix, `/\`) {
		return nil, domain.ErrNotFound
	}
	if s.index != nil {
		rec, err := s.index.FindByPrefix(ctx, prefix)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Str("prefix", prefix).Msg("story: index lookup failed; scanning folders")
		}
	}
	entries, err := s.files.List(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.IsDir || !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		rec, err := s.readRecord(ctx, e.Name)
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, domain.ErrNotFound
}

// Archive bundles every file of a story, the book and web copies included,
// into a zip.
func (s *Store) Archive(ctx context.Context, prefix string) ([]byte, *domain.StoryRecord, error) {
	rec, err := s.Get(ctx, prefix)
	if err != nil {
		return nil, nil, err
	}
	var assets []zip.Asset
	if err := s.collect(ctx, rec.Folder, rec.CreatedAt, &assets); err != nil {
		return nil, nil, err
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		return nil, nil, err
	}
	return archive, rec, nil
}

func (s *Store) collect(ctx context.Context, dir string, modified time.Time, assets *[]zip.Asset) error {
	entries, err := s.files.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		key := path.Join(dir, e.Name)
		if e.IsDir {
			if err := s.collect(ctx, key, modified, assets); err != nil {
				return err
			}
			continue
		}
		data, err := s.files.Read(ctx, key)
		if err != nil {
			return err
		}
		*assets = append(*assets, zip.Asset{Filename: key, MIME: mimeFor(e.Name), Data: data, Modified: modified})
	}
	return nil
}

func (s *Store) readRecord(ctx context.Context, folder string) (*domain.StoryRecord, error) {
	data, err := s.files.Read(ctx, path.Join(folder, RecordFile))
	if err != nil {
		return nil, err
	}
	var rec domain.StoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("story: decode %s: %w", folder, err)
	}
	return &rec, nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeTitle makes a title safe for a folder name: diacritics and
// reserved characters are dropped, spaces become underscores and the result
// is cut to 50 runes.
func SanitizeTitle(title string) string {
	plain, _, err := transform.String(stripMarks, strings.TrimSpace(title))
	if err != nil {
		plain = title
	}
	var b strings.Builder
	n := 0
	for _, r := range plain {
		if n >= maxTitleLength {
			break
		}
		switch {
		case strings.ContainsRune(`<>:"/\|?*.`, r), unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			r = '_'
		}
		b.WriteRune(r)
		n++
	}
	return strings.Trim(b.String(), "_")
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func mimeFor(name string) string {
	switch path.Ext(name) {
	case ".png":
		return "image/png"
	case ".jpg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}

var _ pipeline.Store = (*Store)(nil)
