package api

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/clock"
	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
	"github.com/conorfennell/memoryrefresh/internal/service"
	"github.com/conorfennell/memoryrefresh/internal/storage"
)

func newDispatcher(t *testing.T) (*Dispatcher, *storage.DB) {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	svc := service.New(db, service.WithClock(clock.NewManual(1000)))
	return NewDispatcher(svc, zap.NewNop()), db
}

// roundTrip re-encodes the envelope data into out, the way a client sees it.
func roundTrip(t *testing.T, env Envelope, out any) {
	t.Helper()
	require.Nil(t, env.Err)
	b, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, out))
}

func TestOperations(t *testing.T) {
	d, _ := newDispatcher(t)
	require.Equal(t, []string{
		"createNote",
		"createTag",
		"createTranslateCard",
		"deleteNote",
		"deleteTag",
		"deleteTranslateCard",
		"readAllTags",
		"readNoteById",
		"readNoteHistory",
		"readNotesByFilter",
		"readTagHistory",
		"readTopOverdueTranslateCards",
		"readTranslateCardById",
		"readTranslateCardHistory",
		"readTranslateCardsByFilter",
		"refreshTagUsage",
		"reviewTranslateCard",
		"updateNote",
		"updateTag",
		"updateTranslateCard",
	}, d.Operations())
}

func TestDispatch_CardLifecycle(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	env := d.Dispatch(ctx, "createTag", json.RawMessage(`{"name":"verbs"}`))
	var tag domain.Tag
	roundTrip(t, env, &tag)
	require.Equal(t, "verbs", tag.Name)

	env = d.Dispatch(ctx, "createTranslateCard", json.RawMessage(
		`{"textToTranslate":"laufen","translation":"to run","tagIds":[`+jsonInt(tag.ID)+`]}`))
	var c struct{ ID int64 }
	roundTrip(t, env, &c)
	require.NotZero(t, c.ID)

	env = d.Dispatch(ctx, "reviewTranslateCard", json.RawMessage(`{"id":`+jsonInt(c.ID)+`,"coefficient":"x2"}`))
	var card domain.TranslateCard
	roundTrip(t, env, &card)
	require.Equal(t, "2d", card.Schedule.Delay)
	require.Equal(t, []int64{tag.ID}, card.TagIDs)

	env = d.Dispatch(ctx, "readTranslateCardsByFilter", json.RawMessage(`{"tagIdsToInclude":[`+jsonInt(tag.ID)+`]}`))
	var cards []domain.TranslateCard
	roundTrip(t, env, &cards)
	require.Len(t, cards, 1)

	env = d.Dispatch(ctx, "deleteTag", json.RawMessage(`{"id":`+jsonInt(tag.ID)+`}`))
	require.NotNil(t, env.Err)
	require.Equal(t, errs.CodeReferentialIntegrity, env.Err.Code)

	env = d.Dispatch(ctx, "deleteTranslateCard", json.RawMessage(`{"id":`+jsonInt(c.ID)+`}`))
	require.True(t, env.OK())
	require.Nil(t, env.Data)

	env = d.Dispatch(ctx, "readTranslateCardById", json.RawMessage(`{"id":`+jsonInt(c.ID)+`}`))
	require.NotNil(t, env.Err)
	require.Equal(t, errs.CodeNotFound, env.Err.Code)

	env = d.Dispatch(ctx, "readTranslateCardHistory", json.RawMessage(`{"id":`+jsonInt(c.ID)+`}`))
	var h domain.TranslateCardHistory
	roundTrip(t, env, &h)
	require.Len(t, h.Schedule, 2)
}

func TestDispatch_Errors(t *testing.T) {
	d, db := newDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		op   string
		args string
		want errs.Code
	}{
		{"unknown operation", "dropDatabase", `{}`, errs.CodeUnknownOperation},
		{"blank text", "createNote", `{"text":"  "}`, errs.CodeValidation},
		{"missing text", "createNote", `{}`, errs.CodeValidation},
		{"malformed json", "createNote", `{"text":`, errs.CodeValidation},
		{"unknown field", "createTag", `{"name":"a","colour":"red"}`, errs.CodeValidation},
		{"bad sort", "readNotesByFilter", `{"sortBy":"size"}`, errs.CodeValidation},
		{"zero id", "readNoteById", `{"id":0}`, errs.CodeValidation},
		{"bad limit", "readTopOverdueTranslateCards", `{"limit":0}`, errs.CodeValidation},
		{"bad coefficient", "reviewTranslateCard", `{"id":1,"coefficient":"fast"}`, errs.CodeInvalidFormat},
		{"missing note", "readNoteById", `{"id":77}`, errs.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := d.Dispatch(ctx, tt.op, json.RawMessage(tt.args))
			require.NotNil(t, env.Err)
			require.Equal(t, tt.want, env.Err.Code, env.Err.Message)
		})
	}

	t.Run("duplicate tag", func(t *testing.T) {
		require.True(t, d.Dispatch(ctx, "createTag", json.RawMessage(`{"name":"dup"}`)).OK())
		env := d.Dispatch(ctx, "createTag", json.RawMessage(`{"name":"dup"}`))
		require.Equal(t, errs.CodeUniqueness, env.Err.Code)
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		require.NoError(t, db.Close())
		env := d.Dispatch(ctx, "readAllTags", nil)
		require.Equal(t, errs.CodeInternal, env.Err.Code)
		require.Equal(t, "internal error", env.Err.Message)
	})
}

func TestDispatch_RecoversPanics(t *testing.T) {
	d, _ := newDispatcher(t)
	d.handlers["boom"] = func(context.Context, json.RawMessage) (any, error) {
		panic("boom")
	}

	env := d.Dispatch(context.Background(), "boom", nil)
	require.NotNil(t, env.Err)
	require.Equal(t, errs.CodeInternal, env.Err.Code)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
