package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/clock"
	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
	"github.com/conorfennell/memoryrefresh/internal/storage"
)

type fixture struct {
	svc   *Service
	clock *clock.Manual
	db    *storage.DB
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clk := clock.NewManual(1000)
	opts = append([]Option{WithClock(clk)}, opts...)
	return &fixture{svc: New(db, opts...), clock: clk, db: db}
}

func (f *fixture) tag(t *testing.T, name string) int64 {
	t.Helper()
	tag, err := f.svc.CreateTag(context.Background(), name)
	require.NoError(t, err)
	return tag.ID
}

func ptr[T any](v T) *T { return &v }

func TestValidationHappensBeforeStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A closed database proves storage is never reached.
	require.NoError(t, f.db.Close())

	_, err := f.svc.CreateNote(ctx, CreateNote{Text: "   "})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.CreateTranslateCard(ctx, CreateTranslateCard{TextToTranslate: "a", Translation: "\t"})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.CreateTag(ctx, "")
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.UpdateNote(ctx, UpdateNote{ID: 1, Text: ptr(" ")})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.ReadNotesByFilter(ctx, domain.Filter{RowsLimit: -1})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.ReviewTranslateCard(ctx, 1, "soon")
	require.ErrorIs(t, err, errs.ErrInvalidFormat)
}

func TestTagUsageIsInvalidatedByMutations(t *testing.T) {
	loads := 0
	usage := storage.NewTagUsage(1, func(ctx context.Context, q sqlx.QueryerContext) (map[int64]int64, error) {
		loads++
		return storage.TagUsageCounts(ctx, q)
	})
	f := newFixture(t, WithTagUsage(usage))
	ctx := context.Background()

	common := f.tag(t, "common")
	rare := f.tag(t, "rare")
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateNote(ctx, CreateNote{Text: "n", TagIDs: []int64{common}})
		require.NoError(t, err)
	}
	id, err := f.svc.CreateNote(ctx, CreateNote{Text: "both", TagIDs: []int64{common, rare}})
	require.NoError(t, err)

	notes, err := f.svc.ReadNotesByFilter(ctx, domain.Filter{TagIDsToInclude: []int64{common, rare}})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, id, notes[0].ID)
	require.Equal(t, 1, loads)

	counts, err := f.svc.RefreshTagUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]int64{common: 4, rare: 1}, counts)
	require.Equal(t, 2, loads)
}
