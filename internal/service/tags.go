package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
	"github.com/conorfennell/memoryrefresh/internal/storage"
)

// CreateTag stores a new tag. Names are unique.
func (s *Service) CreateTag(ctx context.Context, name string) (domain.Tag, error) {
	name, err := requireText("name", name)
	if err != nil {
		return domain.Tag{}, err
	}
	var tag domain.Tag
	err = s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		tag = domain.Tag{Name: name, CreatedAt: now}
		id, err := storage.Tags.Insert(ctx, tx, tag)
		if err != nil {
			return err
		}
		tag.ID = id
		s.usage.Invalidate()
		return nil
	})
	if err != nil {
		return domain.Tag{}, fmt.Errorf("failed to create tag %q: %w", name, err)
	}
	s.logger.Debug("created tag", zap.Int64("id", tag.ID), zap.String("name", tag.Name))
	return tag, nil
}

// ReadAllTags returns every live tag ordered by name.
func (s *Service) ReadAllTags(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		var err error
		tags, err = storage.AllTags(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return tags, nil
}

// UpdateTag renames a tag. Renaming to the current name is a no-op.
func (s *Service) UpdateTag(ctx context.Context, id int64, name string) (domain.Tag, error) {
	if err := requireID("id", id); err != nil {
		return domain.Tag{}, err
	}
	name, err := requireText("name", name)
	if err != nil {
		return domain.Tag{}, err
	}
	var tag domain.Tag
	err = s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		var err error
		if tag, err = storage.Tags.Get(ctx, tx, domain.Tag{ID: id}); err != nil {
			return err
		}
		if tag.Name == name {
			return nil
		}
		tag.Name = name
		return storage.Tags.Update(ctx, tx, tag, now)
	})
	if err != nil {
		return domain.Tag{}, fmt.Errorf("failed to update tag %d: %w", id, err)
	}
	return tag, nil
}

// DeleteTag archives and removes a tag. A tag still attached to a card or
// note cannot be deleted.
func (s *Service) DeleteTag(ctx context.Context, id int64) error {
	if err := requireID("id", id); err != nil {
		return err
	}
	err := s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		err := storage.Tags.Delete(ctx, tx, domain.Tag{ID: id}, now)
		if errors.Is(err, errs.ErrReferentialIntegrity) {
			return fmt.Errorf("%w: %w", errs.ErrTagInUse, err)
		}
		if errors.Is(err, errs.ErrRowCount) {
			return fmt.Errorf("tag %d: %w: %w", id, errs.ErrNotFound, err)
		}
		if err != nil {
			return err
		}
		s.usage.Invalidate()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete tag %d: %w", id, err)
	}
	s.logger.Debug("deleted tag", zap.Int64("id", id))
	return nil
}

// ReadTagHistory returns the superseded states of a tag, newest first.
func (s *Service) ReadTagHistory(ctx context.Context, id int64) ([]domain.Version[domain.Tag], error) {
	if err := requireID("id", id); err != nil {
		return nil, err
	}
	var hist []domain.Version[domain.Tag]
	err := s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		var err error
		if hist, err = storage.Tags.History(ctx, tx, "id", id); err != nil {
			return err
		}
		if len(hist) == 0 {
			_, err = storage.Tags.Get(ctx, tx, domain.Tag{ID: id})
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history of tag %d: %w", id, err)
	}
	return hist, nil
}

// RefreshTagUsage reloads the tag usage counts and returns them.
func (s *Service) RefreshTagUsage(ctx context.Context) (map[int64]int64, error) {
	err := s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		return s.usage.Refresh(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh tag usage: %w", err)
	}
	return s.usage.Counts(), nil
}

// EnsureTag returns the tag named name, creating it when missing.
func (s *Service) EnsureTag(ctx context.Context, name string) (domain.Tag, error) {
	name, err := requireText("name", name)
	if err != nil {
		return domain.Tag{}, err
	}
	var tag domain.Tag
	err = s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		var err error
		tag, err = storage.FindTagByName(ctx, tx, name)
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		tag = domain.Tag{Name: name, CreatedAt: now}
		if tag.ID, err = storage.Tags.Insert(ctx, tx, tag); err != nil {
			return err
		}
		s.usage.Invalidate()
		return nil
	})
	if err != nil {
		return domain.Tag{}, fmt.Errorf("failed to ensure tag %q: %w", name, err)
	}
	return tag, nil
}
