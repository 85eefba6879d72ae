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

// historySuffix names the append-only twin of every versioned table.
const historySuffix = "_ver"

// Table is a live table paired with a history table. R is a row struct whose
// `db` tags name the columns; it must carry the key columns.
//
// Insert writes the live row only. Update and Delete first copy the live row
// into the history table stamped with the caller's timestamp.
type Table[R any] struct {
	Name    string
	Keys    []string
	Columns []string
	// AutoKey marks keys generated by the engine; they are omitted on insert.
	AutoKey bool
}

func (t *Table[R]) history() string { return t.Name + historySuffix }

func (t *Table[R]) allColumns() []string {
	cols := make([]string, 0, len(t.Keys)+len(t.Columns))
	cols = append(cols, t.Keys...)
	return append(cols, t.Columns...)
}

// keyWhere binds the key columns of row into a WHERE clause.
func (t *Table[R]) keyWhere(row R) (string, []any, error) {
	parts := make([]string, len(t.Keys))
	for i, k := range t.Keys {
		parts[i] = k + " = :" + k
	}
	where, args, err := sqlx.Named(strings.Join(parts, " AND "), row)
	if err != nil {
		return "", nil, fmt.Errorf("bind %s key: %w", t.Name, err)
	}
	return where, args, nil
}

// Insert writes row and returns the identity generated by the engine.
func (t *Table[R]) Insert(ctx context.Context, e sqlx.ExtContext, row R) (int64, error) {
	cols := t.Columns
	if !t.AutoKey {
		cols = t.allColumns()
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		t.Name, strings.Join(cols, ", "), strings.Join(cols, ", :"))

	res, err := sqlx.NamedExecContext(ctx, e, query, row)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.Name, errs.ClassifySQL(err))
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s reported no identity", errs.ErrInsert, t.Name)
	}
	return id, nil
}

// archive copies the live row identified by row's key into history.
func (t *Table[R]) archive(ctx context.Context, e sqlx.ExtContext, where string, args []any, ts int64) error {
	cols := strings.Join(t.allColumns(), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s, timestamp) SELECT %s, ? FROM %s WHERE %s",
		t.history(), cols, cols, t.Name, where)

	res, err := e.ExecContext(ctx, query, append([]any{ts}, args...)...)
	if err != nil {
		return fmt.Errorf("archive %s: %w", t.Name, errs.ClassifySQL(err))
	}
	return expectOne(res)
}

// Update archives the current state of row's key and overwrites it with row.
func (t *Table[R]) Update(ctx context.Context, e sqlx.ExtContext, row R, ts int64) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: %s has no mutable columns", errs.ErrUpdate, t.Name)
	}
	where, args, err := t.keyWhere(row)
	if err != nil {
		return err
	}
	if err := t.archive(ctx, e, where, args, ts); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrUpdate, err)
	}

	sets := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		sets[i] = c + " = :" + c
	}
	keys := make([]string, len(t.Keys))
	for i, k := range t.Keys {
		keys[i] = k + " = :" + k
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		t.Name, strings.Join(sets, ", "), strings.Join(keys, " AND "))

	res, err := sqlx.NamedExecContext(ctx, e, query, row)
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", errs.ErrUpdate, t.Name, errs.ClassifySQL(err))
	}
	if err := expectOne(res); err != nil {
		return fmt.Errorf("%w: update %s: %w", errs.ErrUpdate, t.Name, err)
	}
	return nil
}

// Delete archives the live row with row's key and removes it.
func (t *Table[R]) Delete(ctx context.Context, e sqlx.ExtContext, row R, ts int64) error {
	where, args, err := t.keyWhere(row)
	if err != nil {
		return err
	}
	if err := t.archive(ctx, e, where, args, ts); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrDelete, err)
	}

	res, err := e.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", t.Name, where), args...)
	if err != nil {
		return fmt.Errorf("%w: delete from %s: %w", errs.ErrDelete, t.Name, errs.ClassifySQL(err))
	}
	if err := expectOne(res); err != nil {
		return fmt.Errorf("%w: delete from %s: %w", errs.ErrDelete, t.Name, err)
	}
	return nil
}

// Get loads the live row with row's key.
func (t *Table[R]) Get(ctx context.Context, q sqlx.QueryerContext, key R) (R, error) {
	var out R
	where, args, err := t.keyWhere(key)
	if err != nil {
		return out, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(t.allColumns(), ", "), t.Name, where)
	if err := sqlx.GetContext(ctx, q, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, fmt.Errorf("%s: %w", t.Name, errs.ErrNotFound)
		}
		return out, fmt.Errorf("get from %s: %w", t.Name, err)
	}
	return out, nil
}

// History returns the superseded states of rows where column = value,
// newest first.
func (t *Table[R]) History(ctx context.Context, q sqlx.QueryerContext, column string, value any) ([]domain.Version[R], error) {
	cols := t.allColumns()
	aliased := make([]string, len(cols))
	for i, c := range cols {
		aliased[i] = fmt.Sprintf(`%s AS "row.%s"`, c, c)
	}
	query := fmt.Sprintf("SELECT %s, timestamp FROM %s WHERE %s = ? ORDER BY timestamp DESC, rowid DESC",
		strings.Join(aliased, ", "), t.history(), column)

	out := []domain.Version[R]{}
	if err := sqlx.SelectContext(ctx, q, &out, query, value); err != nil {
		return nil, fmt.Errorf("history of %s: %w", t.Name, err)
	}
	return out, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %d", errs.ErrRowCount, n)
	}
	return nil
}
