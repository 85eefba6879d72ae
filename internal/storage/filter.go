package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
)

// CardRow is a translate card joined with its content and schedule.
type CardRow struct {
	ID                 int64  `db:"id"`
	CreatedAt          int64  `db:"created_at"`
	TextToTranslate    string `db:"text_to_translate"`
	Translation        string `db:"translation"`
	UpdatedAt          int64  `db:"updated_at"`
	OrigDelay          string `db:"orig_delay"`
	Delay              string `db:"delay"`
	NextAccessInMillis int64  `db:"next_access_in_millis"`
	NextAccessAt       int64  `db:"next_access_at"`
}

// Schedule extracts the schedule part of the row.
func (r CardRow) Schedule() domain.Schedule {
	return domain.Schedule{
		CardID:             r.ID,
		UpdatedAt:          r.UpdatedAt,
		OrigDelay:          r.OrigDelay,
		Delay:              r.Delay,
		NextAccessInMillis: r.NextAccessInMillis,
		NextAccessAt:       r.NextAccessAt,
	}
}

// NoteRow is a note joined with its text.
type NoteRow struct {
	ID        int64  `db:"id"`
	CreatedAt int64  `db:"created_at"`
	Text      string `db:"text"`
}

type searchShape struct {
	objectType  domain.ObjectType
	selectList  string
	joins       string
	textColumns []string
	sortColumns map[domain.SortBy]string
}

var cardSearch = searchShape{
	objectType: domain.TypeTranslateCard,
	selectList: `o.id, o.created_at, t.text_to_translate, t.translation,
		s.updated_at, s.orig_delay, s.delay, s.next_access_in_millis, s.next_access_at`,
	joins: `JOIN translations t ON t.card_id = o.id
		JOIN schedules s ON s.card_id = o.id`,
	textColumns: []string{"t.text_to_translate", "t.translation"},
	sortColumns: map[domain.SortBy]string{
		domain.SortByCreatedAt:    "o.created_at",
		domain.SortByText:         "t.text_to_translate",
		domain.SortByNextAccessAt: "s.next_access_at",
	},
}

var noteSearch = searchShape{
	objectType:  domain.TypeNote,
	selectList:  `o.id, o.created_at, n.text`,
	joins:       `JOIN notes n ON n.note_id = o.id`,
	textColumns: []string{"n.text"},
	sortColumns: map[domain.SortBy]string{
		domain.SortByCreatedAt: "o.created_at",
		domain.SortByText:      "n.text",
	},
}

// SearchCards returns live translate cards matching f. anchorTagID, when
// non-zero, must be one of f.TagIDsToInclude; the query is driven from its
// object_tags rows.
func SearchCards(ctx context.Context, q sqlx.QueryerContext, f domain.Filter, anchorTagID int64) ([]CardRow, error) {
	query, args, err := buildSearch(cardSearch, f, anchorTagID)
	if err != nil {
		return nil, err
	}
	rows := []CardRow{}
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search cards: %w", err)
	}
	return rows, nil
}

// SearchNotes returns live notes matching f. See SearchCards for anchorTagID.
func SearchNotes(ctx context.Context, q sqlx.QueryerContext, f domain.Filter, anchorTagID int64) ([]NoteRow, error) {
	query, args, err := buildSearch(noteSearch, f, anchorTagID)
	if err != nil {
		return nil, err
	}
	rows := []NoteRow{}
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	return rows, nil
}

// AllCards returns every live translate card.
func AllCards(ctx context.Context, q sqlx.QueryerContext) ([]CardRow, error) {
	return SearchCards(ctx, q, domain.Filter{}, 0)
}

// GetCard returns one live translate card.
func GetCard(ctx context.Context, q sqlx.QueryerContext, id int64) (CardRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM objects o %s WHERE o.id = ? AND o.type = ?`,
		cardSearch.selectList, cardSearch.joins)
	var row CardRow
	if err := sqlx.GetContext(ctx, q, &row, query, id, domain.TypeTranslateCard); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return row, fmt.Errorf("card %d: %w", id, errs.ErrNotFound)
		}
		return row, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	return row, nil
}

func buildSearch(shape searchShape, f domain.Filter, anchorTagID int64) (string, []any, error) {
	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "SELECT %s FROM objects o %s", shape.selectList, shape.joins)

	include := uniqueIDs(f.TagIDsToInclude)
	if anchorTagID != 0 {
		sb.WriteString(" JOIN object_tags anchor ON anchor.object_id = o.id AND anchor.tag_id = ?")
		args = append(args, anchorTagID)
		include = without(include, anchorTagID)
	}

	sb.WriteString(" WHERE o.type = ?")
	args = append(args, shape.objectType)

	if len(include) > 0 {
		sb.WriteString(" AND (SELECT COUNT(*) FROM object_tags it WHERE it.object_id = o.id AND it.tag_id IN (?)) = ?")
		args = append(args, include, len(include))
	}
	if exclude := uniqueIDs(f.TagIDsToExclude); len(exclude) > 0 {
		sb.WriteString(" AND NOT EXISTS (SELECT 1 FROM object_tags et WHERE et.object_id = o.id AND et.tag_id IN (?))")
		args = append(args, exclude)
	}
	if text := strings.TrimSpace(f.SearchText); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		conds := make([]string, len(shape.textColumns))
		for i, c := range shape.textColumns {
			conds[i] = c + ` LIKE ? ESCAPE '\'`
			args = append(args, pattern)
		}
		fmt.Fprintf(&sb, " AND (%s)", strings.Join(conds, " OR "))
	}
	if f.CreatedFrom != nil {
		sb.WriteString(" AND o.created_at >= ?")
		args = append(args, *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		sb.WriteString(" AND o.created_at <= ?")
		args = append(args, *f.CreatedTo)
	}

	sortBy := f.SortBy
	if sortBy == "" {
		sortBy = domain.SortByCreatedAt
	}
	column, ok := shape.sortColumns[sortBy]
	if !ok {
		return "", nil, errs.Validation("sortBy", fmt.Sprintf("%q is not supported", sortBy))
	}
	dir := "DESC"
	switch f.SortDir {
	case "", domain.SortDesc:
	case domain.SortAsc:
		dir = "ASC"
	default:
		return "", nil, errs.Validation("sortDir", fmt.Sprintf("%q is not supported", f.SortDir))
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s, o.id %s", column, dir, dir)

	if f.RowsLimit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.RowsLimit)
	}

	query, args, err := sqlx.In(sb.String(), args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand filter: %w", err)
	}
	return query, args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(ids []int64, drop int64) []int64 {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
