package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/duration"
	"github.com/conorfennell/memoryrefresh/internal/errs"
	"github.com/conorfennell/memoryrefresh/internal/schedule"
	"github.com/conorfennell/memoryrefresh/internal/storage"
)

// CreateTranslateCard holds the arguments of a card creation.
type CreateTranslateCard struct {
	TextToTranslate string  `json:"textToTranslate" validate:"notblank"`
	Translation     string  `json:"translation" validate:"notblank"`
	TagIDs          []int64 `json:"tagIds" validate:"dive,min=1"`
}

// UpdateTranslateCard holds the arguments of a card update. Nil fields are
// left unchanged; a non-nil TagIDs replaces the whole tag set.
type UpdateTranslateCard struct {
	ID              int64    `json:"id" validate:"min=1"`
	TextToTranslate *string  `json:"textToTranslate" validate:"omitempty,notblank"`
	Translation     *string  `json:"translation" validate:"omitempty,notblank"`
	TagIDs          *[]int64 `json:"tagIds" validate:"omitempty,dive,min=1"`
	// Delay is a coefficient applied to the current delay or a duration
	// that replaces it.
	Delay *string `json:"delay" validate:"omitempty,notblank"`
}

// CreateTranslateCard stores a new card with its initial schedule and
// returns its id.
func (s *Service) CreateTranslateCard(ctx context.Context, in CreateTranslateCard) (int64, error) {
	text, err := requireText("textToTranslate", in.TextToTranslate)
	if err != nil {
		return 0, err
	}
	translation, err := requireText("translation", in.Translation)
	if err != nil {
		return 0, err
	}
	tagIDs, err := normalizeTagIDs(in.TagIDs)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		id, err = storage.Objects.Insert(ctx, tx, domain.Object{Type: domain.TypeTranslateCard, CreatedAt: now})
		if err != nil {
			return err
		}
		if err := s.attachTags(ctx, tx, id, tagIDs); err != nil {
			return err
		}
		if _, err := storage.Translations.Insert(ctx, tx, domain.Translation{
			CardID:          id,
			TextToTranslate: text,
			Translation:     translation,
		}); err != nil {
			return err
		}
		sched, err := s.engine.Init(id, now)
		if err != nil {
			return err
		}
		_, err = storage.Schedules.Insert(ctx, tx, sched)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create translate card: %w", err)
	}
	s.logger.Debug("created translate card", zap.Int64("id", id))
	return id, nil
}

// ReadTranslateCardByID returns a live card.
func (s *Service) ReadTranslateCardByID(ctx context.Context, id int64) (domain.TranslateCard, error) {
	if err := requireID("id", id); err != nil {
		return domain.TranslateCard{}, err
	}
	var card domain.TranslateCard
	err := s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		var err error
		card, err = s.loadCard(ctx, tx, id, now)
		return err
	})
	if err != nil {
		return domain.TranslateCard{}, fmt.Errorf("failed to read translate card %d: %w", id, err)
	}
	return card, nil
}

// ReadTranslateCardsByFilter returns the live cards matching f.
func (s *Service) ReadTranslateCardsByFilter(ctx context.Context, f domain.Filter) ([]domain.TranslateCard, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	var cards []domain.TranslateCard
	err := s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		anchor, err := s.anchorTag(ctx, tx, f)
		if err != nil {
			return err
		}
		rows, err := storage.SearchCards(ctx, tx, f, anchor)
		if err != nil {
			return err
		}
		cards, err = s.assembleCards(ctx, tx, rows, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read translate cards: %w", err)
	}
	return cards, nil
}

// UpdateTranslateCard applies in and returns the resulting card. Content
// whose trimmed value is unchanged is not rewritten.
func (s *Service) UpdateTranslateCard(ctx context.Context, in UpdateTranslateCard) (domain.TranslateCard, error) {
	if err := requireID("id", in.ID); err != nil {
		return domain.TranslateCard{}, err
	}
	text, err := optionalText("textToTranslate", in.TextToTranslate)
	if err != nil {
		return domain.TranslateCard{}, err
	}
	translation, err := optionalText("translation", in.Translation)
	if err != nil {
		return domain.TranslateCard{}, err
	}
	delay, err := optionalText("delay", in.Delay)
	if err != nil {
		return domain.TranslateCard{}, err
	}
	var tagIDs []int64
	if in.TagIDs != nil {
		if tagIDs, err = normalizeTagIDs(*in.TagIDs); err != nil {
			return domain.TranslateCard{}, err
		}
	}

	var card domain.TranslateCard
	err = s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		row, err := storage.GetCard(ctx, tx, in.ID)
		if err != nil {
			return err
		}

		content := domain.Translation{CardID: row.ID, TextToTranslate: row.TextToTranslate, Translation: row.Translation}
		if text != nil {
			content.TextToTranslate = *text
		}
		if translation != nil {
			content.Translation = *translation
		}
		if content.TextToTranslate != row.TextToTranslate || content.Translation != row.Translation {
			if err := storage.Translations.Update(ctx, tx, content, now); err != nil {
				return err
			}
		}

		if in.TagIDs != nil {
			if err := s.reconcileTags(ctx, tx, row.ID, tagIDs, now); err != nil {
				return err
			}
		}

		if delay != nil {
			if err := s.reschedule(ctx, tx, row.Schedule(), *delay, now); err != nil {
				return err
			}
		}

		card, err = s.loadCard(ctx, tx, row.ID, now)
		return err
	})
	if err != nil {
		return domain.TranslateCard{}, fmt.Errorf("failed to update translate card %d: %w", in.ID, err)
	}
	return card, nil
}

// ReviewTranslateCard records a check-in: the card's delay is multiplied by
// coefficient and the card is rescheduled from now.
func (s *Service) ReviewTranslateCard(ctx context.Context, id int64, coefficient string) (domain.TranslateCard, error) {
	if err := requireID("id", id); err != nil {
		return domain.TranslateCard{}, err
	}
	coef := duration.NormalizeCoefficient(coefficient)
	if !duration.IsCoefficient(coef) {
		return domain.TranslateCard{}, fmt.Errorf("%w: coefficient %q", errs.ErrInvalidFormat, coefficient)
	}

	var card domain.TranslateCard
	err := s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		row, err := storage.GetCard(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.reschedule(ctx, tx, row.Schedule(), coef, now); err != nil {
			return err
		}
		card, err = s.loadCard(ctx, tx, id, now)
		return err
	})
	if err != nil {
		return domain.TranslateCard{}, fmt.Errorf("failed to review translate card %d: %w", id, err)
	}
	s.logger.Debug("reviewed translate card",
		zap.Int64("id", id),
		zap.String("coefficient", coef),
		zap.String("delay", card.Schedule.Delay),
	)
	return card, nil
}

func (s *Service) reschedule(ctx context.Context, tx *sqlx.Tx, current domain.Schedule, delayOrCoefficient string, now int64) error {
	next, err := s.engine.Apply(current, delayOrCoefficient, now)
	if err != nil {
		return err
	}
	return storage.Schedules.Update(ctx, tx, next, now)
}

// DeleteTranslateCard archives and removes a card together with its tag
// links, schedule and content.
func (s *Service) DeleteTranslateCard(ctx context.Context, id int64) error {
	if err := requireID("id", id); err != nil {
		return err
	}
	err := s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		obj, err := storage.GetObject(ctx, tx, id, domain.TypeTranslateCard)
		if err != nil {
			return err
		}
		if err := s.detachAllTags(ctx, tx, id, now); err != nil {
			return err
		}
		if err := storage.Schedules.Delete(ctx, tx, domain.Schedule{CardID: id}, now); err != nil {
			return err
		}
		if err := storage.Translations.Delete(ctx, tx, domain.Translation{CardID: id}, now); err != nil {
			return err
		}
		return storage.Objects.Delete(ctx, tx, obj, now)
	})
	if err != nil {
		return fmt.Errorf("failed to delete translate card %d: %w", id, err)
	}
	s.logger.Debug("deleted translate card", zap.Int64("id", id))
	return nil
}

// ReadTopOverdueTranslateCards returns up to limit due cards, most overdue
// first.
func (s *Service) ReadTopOverdueTranslateCards(ctx context.Context, limit int) (domain.OverdueQueue, error) {
	if limit <= 0 {
		return domain.OverdueQueue{}, errs.Validation("limit", "must be positive")
	}
	queue := domain.OverdueQueue{Cards: []domain.TranslateCard{}}
	err := s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		rows, err := storage.AllCards(ctx, tx)
		if err != nil {
			return err
		}

		type ranked struct {
			row     storage.CardRow
			overdue float64
		}
		var due []ranked
		nextDueAt := int64(-1)
		for _, row := range rows {
			sched := row.Schedule()
			if o := s.engine.Overdue(sched, now); o > 0 {
				due = append(due, ranked{row: row, overdue: o})
				continue
			}
			if at := s.engine.DueAt(sched); nextDueAt < 0 || at < nextDueAt {
				nextDueAt = at
			}
		}
		slices.SortStableFunc(due, func(a, b ranked) int {
			if c := cmp.Compare(b.overdue, a.overdue); c != 0 {
				return c
			}
			return cmp.Compare(a.row.ID, b.row.ID)
		})

		queue.DueCount = len(due)
		if nextDueAt >= 0 {
			queue.NextActivatesIn = duration.Format(nextDueAt - now)
		}
		top := make([]storage.CardRow, 0, min(limit, len(due)))
		for _, r := range due[:min(limit, len(due))] {
			top = append(top, r.row)
		}
		queue.Cards, err = s.assembleCards(ctx, tx, top, now)
		return err
	})
	if err != nil {
		return domain.OverdueQueue{}, fmt.Errorf("failed to read overdue translate cards: %w", err)
	}
	return queue, nil
}

// ReadTranslateCardHistory returns every superseded row of a card, live or
// deleted.
func (s *Service) ReadTranslateCardHistory(ctx context.Context, id int64) (domain.TranslateCardHistory, error) {
	if err := requireID("id", id); err != nil {
		return domain.TranslateCardHistory{}, err
	}
	var h domain.TranslateCardHistory
	err := s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		var err error
		if h.Object, err = objectHistory(ctx, tx, id, domain.TypeTranslateCard); err != nil {
			return err
		}
		if h.Translation, err = storage.Translations.History(ctx, tx, "card_id", id); err != nil {
			return err
		}
		if h.Schedule, err = storage.Schedules.History(ctx, tx, "card_id", id); err != nil {
			return err
		}
		h.Tags, err = storage.ObjectTags.History(ctx, tx, "object_id", id)
		return err
	})
	if err != nil {
		return domain.TranslateCardHistory{}, fmt.Errorf("failed to read history of translate card %d: %w", id, err)
	}
	return h, nil
}

// TranslateCardExists reports whether a live card has exactly this text to translate.
func (s *Service) TranslateCardExists(ctx context.Context, textToTranslate string) (bool, error) {
	text, err := requireText("textToTranslate", textToTranslate)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		exists, err = storage.CardExistsByText(ctx, tx, text)
		return err
	})
	return exists, err
}

func (s *Service) loadCard(ctx context.Context, tx *sqlx.Tx, id, now int64) (domain.TranslateCard, error) {
	row, err := storage.GetCard(ctx, tx, id)
	if err != nil {
		return domain.TranslateCard{}, err
	}
	tagIDs, err := storage.TagIDsOf(ctx, tx, id)
	if err != nil {
		return domain.TranslateCard{}, err
	}
	return s.card(row, tagIDs, now), nil
}

func (s *Service) assembleCards(ctx context.Context, tx *sqlx.Tx, rows []storage.CardRow, now int64) ([]domain.TranslateCard, error) {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	tags, err := storage.TagIDsByObject(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	cards := make([]domain.TranslateCard, len(rows))
	for i, r := range rows {
		cards[i] = s.card(r, tags[r.ID], now)
	}
	return cards, nil
}

func (s *Service) card(row storage.CardRow, tagIDs []int64, now int64) domain.TranslateCard {
	sched := row.Schedule()
	return domain.TranslateCard{
		ID:              row.ID,
		CreatedAt:       row.CreatedAt,
		TextToTranslate: row.TextToTranslate,
		Translation:     row.Translation,
		TagIDs:          nonNil(tagIDs),
		Schedule:        sched,
		ActivatesIn:     schedule.ActivatesIn(sched, now),
		Overdue:         s.engine.Overdue(sched, now),
	}
}
