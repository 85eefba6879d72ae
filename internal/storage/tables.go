package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
)

// Versioned tables of the schema.
var (
	Objects = &Table[domain.Object]{
		Name:    "objects",
		Keys:    []string{"id"},
		Columns: []string{"type", "created_at"},
		AutoKey: true,
	}
	Translations = &Table[domain.Translation]{
		Name:    "translations",
		Keys:    []string{"card_id"},
		Columns: []string{"text_to_translate", "translation"},
	}
	Notes = &Table[domain.NoteText]{
		Name:    "notes",
		Keys:    []string{"note_id"},
		Columns: []string{"text"},
	}
	Schedules = &Table[domain.Schedule]{
		Name:    "schedules",
		Keys:    []string{"card_id"},
		Columns: []string{"updated_at", "orig_delay", "delay", "next_access_in_millis", "next_access_at"},
	}
	Tags = &Table[domain.Tag]{
		Name:    "tags",
		Keys:    []string{"id"},
		Columns: []string{"name", "created_at"},
		AutoKey: true,
	}
	ObjectTags = &Table[domain.ObjectTag]{
		Name: "object_tags",
		Keys: []string{"object_id", "tag_id"},
	}
)

// GetObject loads a live object of the given type.
func GetObject(ctx context.Context, q sqlx.QueryerContext, id int64, typ domain.ObjectType) (domain.Object, error) {
	obj, err := Objects.Get(ctx, q, domain.Object{ID: id})
	if err != nil {
		return obj, err
	}
	if obj.Type != typ {
		return obj, fmt.Errorf("object %d is a %s: %w", id, obj.Type, errs.ErrNotFound)
	}
	return obj, nil
}

// TagIDsOf returns the tag ids attached to an object in ascending order.
func TagIDsOf(ctx context.Context, q sqlx.QueryerContext, objectID int64) ([]int64, error) {
	ids := []int64{}
	err := sqlx.SelectContext(ctx, q, &ids,
		`SELECT tag_id FROM object_tags WHERE object_id = ? ORDER BY tag_id`, objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags of object %d: %w", objectID, err)
	}
	return ids, nil
}

// TagIDsByObject returns the tag ids of several objects at once.
func TagIDsByObject(ctx context.Context, q sqlx.QueryerContext, objectIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(objectIDs))
	if len(objectIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(
		`SELECT object_id, tag_id FROM object_tags WHERE object_id IN (?) ORDER BY object_id, tag_id`, objectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to expand object ids: %w", err)
	}
	var links []domain.ObjectTag
	if err := sqlx.SelectContext(ctx, q, &links, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get object tags: %w", err)
	}
	for _, l := range links {
		out[l.ObjectID] = append(out[l.ObjectID], l.TagID)
	}
	return out, nil
}

// AllTags returns every live tag ordered by name.
func AllTags(ctx context.Context, q sqlx.QueryerContext) ([]domain.Tag, error) {
	tags := []domain.Tag{}
	if err := sqlx.SelectContext(ctx, q, &tags, `SELECT id, name, created_at FROM tags ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	return tags, nil
}

// FindTagByName returns the live tag with the given name, or ErrNotFound.
func FindTagByName(ctx context.Context, q sqlx.QueryerContext, name string) (domain.Tag, error) {
	var tag domain.Tag
	err := sqlx.GetContext(ctx, q, &tag, `SELECT id, name, created_at FROM tags WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return tag, fmt.Errorf("tag %q: %w", name, errs.ErrNotFound)
	}
	if err != nil {
		return tag, fmt.Errorf("failed to find tag %q: %w", name, err)
	}
	return tag, nil
}

// TagUsageCounts counts how many objects each tag is attached to.
// Tags that are attached to nothing are absent from the result.
func TagUsageCounts(ctx context.Context, q sqlx.QueryerContext) (map[int64]int64, error) {
	var rows []struct {
		TagID int64 `db:"tag_id"`
		Count int64 `db:"cnt"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT tag_id, COUNT(*) AS cnt FROM object_tags GROUP BY tag_id`); err != nil {
		return nil, fmt.Errorf("failed to count tag usage: %w", err)
	}
	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		out[r.TagID] = r.Count
	}
	return out, nil
}

// CardExistsByText reports whether a live card has exactly this text to translate.
func CardExistsByText(ctx context.Context, q sqlx.QueryerContext, text string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM translations WHERE text_to_translate = ?`, text); err != nil {
		return false, fmt.Errorf("failed to look up card text: %w", err)
	}
	return n > 0, nil
}
