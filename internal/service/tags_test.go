package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conorfennell/memoryrefresh/internal/errs"
)

func TestCreateTag_DuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tag, err := f.svc.CreateTag(ctx, " verbs ")
	require.NoError(t, err)
	require.Equal(t, "verbs", tag.Name)
	require.Equal(t, int64(1000), tag.CreatedAt)

	_, err = f.svc.CreateTag(ctx, "verbs")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.Equal(t, errs.CodeUniqueness, errs.CodeOf(err))

	tags, err := f.svc.ReadAllTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
}

func TestUpdateTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tag(t, "old")
	other := f.tag(t, "other")

	f.clock.Set(2000)
	tag, err := f.svc.UpdateTag(ctx, id, "old ")
	require.NoError(t, err)
	require.Equal(t, "old", tag.Name)

	hist, err := f.svc.ReadTagHistory(ctx, id)
	require.NoError(t, err)
	require.Empty(t, hist)

	tag, err = f.svc.UpdateTag(ctx, id, "new")
	require.NoError(t, err)
	require.Equal(t, "new", tag.Name)

	hist, err = f.svc.ReadTagHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "old", hist[0].Row.Name)
	require.Equal(t, int64(2000), hist[0].Timestamp)

	_, err = f.svc.UpdateTag(ctx, other, "new")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	hist, err = f.svc.ReadTagHistory(ctx, other)
	require.NoError(t, err)
	require.Empty(t, hist, "a failed rename leaves no history")

	_, err = f.svc.UpdateTag(ctx, 999, "x")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	used := f.tag(t, "used")
	free := f.tag(t, "free")

	_, err := f.svc.CreateNote(ctx, CreateNote{Text: "n", TagIDs: []int64{used}})
	require.NoError(t, err)

	err = f.svc.DeleteTag(ctx, used)
	require.ErrorIs(t, err, errs.ErrTagInUse)
	require.Equal(t, errs.CodeReferentialIntegrity, errs.CodeOf(err))

	hist, err := f.svc.ReadTagHistory(ctx, used)
	require.NoError(t, err)
	require.Empty(t, hist)

	f.clock.Set(3000)
	require.NoError(t, f.svc.DeleteTag(ctx, free))
	hist, err = f.svc.ReadTagHistory(ctx, free)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, int64(3000), hist[0].Timestamp)

	err = f.svc.DeleteTag(ctx, free)
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.ReadTagHistory(ctx, 999)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEnsureTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.EnsureTag(ctx, "nouns")
	require.NoError(t, err)
	second, err := f.svc.EnsureTag(ctx, " nouns")
	require.NoError(t, err)
	require.Equal(t, first, second)
}
