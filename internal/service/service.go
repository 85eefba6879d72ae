// Package service composes the versioned tables into the transactional
// operations exposed to callers.
package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/clock"
	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
	"github.com/conorfennell/memoryrefresh/internal/schedule"
	"github.com/conorfennell/memoryrefresh/internal/storage"
)

// Service is the repository facade. Operations are serialized by one mutex
// and each runs in its own transaction.
type Service struct {
	mu     sync.Mutex
	db     *storage.DB
	clock  clock.Clock
	engine *schedule.Engine
	usage  *storage.TagUsage
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithEngine replaces the default schedule engine.
func WithEngine(e *schedule.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithTagUsage replaces the default tag usage cache.
func WithTagUsage(u *storage.TagUsage) Option {
	return func(s *Service) { s.usage = u }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New returns a Service over db.
func New(db *storage.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		clock:  clock.System{},
		engine: schedule.DefaultEngine(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.usage == nil {
		s.usage = storage.NewTagUsage(storage.DefaultRefreshEvery, nil)
	}
	return s
}

// run executes fn in a transaction while holding the facade lock.
// now is read once so every row written by fn shares the same timestamp.
func (s *Service) run(ctx context.Context, fn func(tx *sqlx.Tx, now int64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.NowMillis()
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(tx, now)
	})
}

// requireText trims s and rejects blank values.
func requireText(field, s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errs.Validation(field, "must not be blank")
	}
	return t, nil
}

// optionalText is requireText for fields that may be left out.
func optionalText(field string, s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	t, err := requireText(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requireID(field string, id int64) error {
	if id <= 0 {
		return errs.Validation(field, "must be positive")
	}
	return nil
}

func normalizeTagIDs(ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if err := requireID("tagIds", id); err != nil {
			return nil, err
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func validateFilter(f domain.Filter) error {
	if f.RowsLimit < 0 {
		return errs.Validation("rowsLimit", "must not be negative")
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && *f.CreatedFrom > *f.CreatedTo {
		return errs.Validation("createdFrom", "is after createdTo")
	}
	return nil
}

// attachTags links objectID to every tag in ids.
func (s *Service) attachTags(ctx context.Context, tx *sqlx.Tx, objectID int64, ids []int64) error {
	for _, tagID := range ids {
		if _, err := storage.ObjectTags.Insert(ctx, tx, domain.ObjectTag{ObjectID: objectID, TagID: tagID}); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		s.usage.Invalidate()
	}
	return nil
}

// reconcileTags makes the tag set of objectID equal to want. Links present
// in both sets are left untouched so they gain no history.
func (s *Service) reconcileTags(ctx context.Context, tx *sqlx.Tx, objectID int64, want []int64, now int64) error {
	have, err := storage.TagIDsOf(ctx, tx, objectID)
	if err != nil {
		return err
	}
	var added []int64
	for _, id := range want {
		if !slices.Contains(have, id) {
			added = append(added, id)
		}
	}
	if err := s.attachTags(ctx, tx, objectID, added); err != nil {
		return err
	}
	removed := false
	for _, id := range have {
		if slices.Contains(want, id) {
			continue
		}
		if err := storage.ObjectTags.Delete(ctx, tx, domain.ObjectTag{ObjectID: objectID, TagID: id}, now); err != nil {
			return err
		}
		removed = true
	}
	if removed {
		s.usage.Invalidate()
	}
	return nil
}

// detachAllTags archives and removes every tag link of objectID.
func (s *Service) detachAllTags(ctx context.Context, tx *sqlx.Tx, objectID int64, now int64) error {
	return s.reconcileTags(ctx, tx, objectID, nil, now)
}

// anchorTag picks the least used include tag to drive a filtered read.
func (s *Service) anchorTag(ctx context.Context, tx *sqlx.Tx, f domain.Filter) (int64, error) {
	ids, err := normalizeTagIDs(f.TagIDsToInclude)
	if err != nil {
		return 0, err
	}
	return s.usage.LeastUsed(ctx, tx, ids)
}

// objectHistory loads the archived object rows of id and checks that the
// object exists, live or deleted, with the given type.
func objectHistory(ctx context.Context, tx *sqlx.Tx, id int64, typ domain.ObjectType) ([]domain.Version[domain.Object], error) {
	hist, err := storage.Objects.History(ctx, tx, "id", id)
	if err != nil {
		return nil, err
	}
	if len(hist) > 0 {
		if hist[0].Row.Type != typ {
			return nil, fmt.Errorf("object %d is a %s: %w", id, hist[0].Row.Type, errs.ErrNotFound)
		}
		return hist, nil
	}
	if _, err := storage.GetObject(ctx, tx, id, typ); err != nil {
		return nil, err
	}
	return hist, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
