package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"storymaker/internal/domain"
	"storymaker/internal/infra"
	"storymaker/internal/sqlinline"
)

const defaultListLimit = 200

// PGIndex stores story records in PostgreSQL through the marker-checked SQL
// runner.
type PGIndex struct {
	db infra.SQLExecutor
}

func NewPGIndex(db infra.SQLExecutor) *PGIndex {
	return &PGIndex{db: db}
}

// EnsureSchema creates the stories table when missing.
func (r *PGIndex) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateStoriesTable, sqlinline.QCreateStoriesCreatedAtIndex} {
		if _, err := r.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("story: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PGIndex) Upsert(ctx context.Context, rec *domain.StoryRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("story: encode record: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QUpsertStory,
		rec.ID,
		rec.Folder,
		rec.Title,
		rec.Universe.Name,
		rec.Succeeded,
		rec.Failed,
		rec.TotalTime,
		payload,
		rec.CreatedAt,
	)
	return err
}

func (r *PGIndex) List(ctx context.Context, limit int) ([]domain.StoryRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.Query(ctx, sqlinline.QListStories, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.StoryRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec domain.StoryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("story: decode indexed record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PGIndex) FindByPrefix(ctx context.Context, prefix string) (*domain.StoryRecord, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, sqlinline.QSelectStoryByPrefix, escapeLike(prefix)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec domain.StoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("story: decode indexed record: %w", err)
	}
	return &rec, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ Index = (*PGIndex)(nil)
