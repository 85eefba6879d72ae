package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/storage"
)

// CreateNote holds the arguments of a note creation.
type CreateNote struct {
	Text   string  `json:"text" validate:"notblank"`
	TagIDs []int64 `json:"tagIds" validate:"dive,min=1"`
}

// UpdateNote holds the arguments of a note update. Nil fields are left
// unchanged.
type UpdateNote struct {
	ID     int64    `json:"id" validate:"min=1"`
	Text   *string  `json:"text" validate:"omitempty,notblank"`
	TagIDs *[]int64 `json:"tagIds" validate:"omitempty,dive,min=1"`
}

// CreateNote stores a new note and returns its id.
func (s *Service) CreateNote(ctx context.Context, in CreateNote) (int64, error) {
	text, err := requireText("text", in.Text)
	if err != nil {
		return 0, err
	}
	tagIDs, err := normalizeTagIDs(in.TagIDs)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		var err error
		id, err = storage.Objects.Insert(ctx, tx, domain.Object{Type: domain.TypeNote, CreatedAt: now})
		if err != nil {
			return err
		}
		if err := s.attachTags(ctx, tx, id, tagIDs); err != nil {
			return err
		}
		_, err = storage.Notes.Insert(ctx, tx, domain.NoteText{NoteID: id, Text: text})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create note: %w", err)
	}
	s.logger.Debug("created note", zap.Int64("id", id))
	return id, nil
}

// ReadNoteByID returns a live note.
func (s *Service) ReadNoteByID(ctx context.Context, id int64) (domain.Note, error) {
	if err := requireID("id", id); err != nil {
		return domain.Note{}, err
	}
	var note domain.Note
	err := s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		var err error
		note, err = loadNote(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Note{}, fmt.Errorf("failed to read note %d: %w", id, err)
	}
	return note, nil
}

// ReadNotesByFilter returns the live notes matching f.
func (s *Service) ReadNotesByFilter(ctx context.Context, f domain.Filter) ([]domain.Note, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	var notes []domain.Note
	err := s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		anchor, err := s.anchorTag(ctx, tx, f)
		if err != nil {
			return err
		}
		rows, err := storage.SearchNotes(ctx, tx, f, anchor)
		if err != nil {
			return err
		}
		ids := make([]int64, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		tags, err := storage.TagIDsByObject(ctx, tx, ids)
		if err != nil {
			return err
		}
		notes = make([]domain.Note, len(rows))
		for i, r := range rows {
			notes[i] = note(r, tags[r.ID])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	return notes, nil
}

// UpdateNote applies in and returns the resulting note. A text whose
// trimmed value is unchanged is not rewritten.
func (s *Service) UpdateNote(ctx context.Context, in UpdateNote) (domain.Note, error) {
	if err := requireID("id", in.ID); err != nil {
		return domain.Note{}, err
	}
	text, err := optionalText("text", in.Text)
	if err != nil {
		return domain.Note{}, err
	}
	var tagIDs []int64
	if in.TagIDs != nil {
		if tagIDs, err = normalizeTagIDs(*in.TagIDs); err != nil {
			return domain.Note{}, err
		}
	}

	var updated domain.Note
	err = s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		current, err := loadNote(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		if text != nil && *text != current.Text {
			if err := storage.Notes.Update(ctx, tx, domain.NoteText{NoteID: in.ID, Text: *text}, now); err != nil {
				return err
			}
		}
		if in.TagIDs != nil {
			if err := s.reconcileTags(ctx, tx, in.ID, tagIDs, now); err != nil {
				return err
			}
		}
		updated, err = loadNote(ctx, tx, in.ID)
		return err
	})
	if err != nil {
		return domain.Note{}, fmt.Errorf("failed to update note %d: %w", in.ID, err)
	}
	return updated, nil
}

// DeleteNote archives and removes a note together with its tag links and text.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	if err := requireID("id", id); err != nil {
		return err
	}
	err := s.run(ctx, func(tx *sqlx.Tx, now int64) error {
		obj, err := storage.GetObject(ctx, tx, id, domain.TypeNote)
		if err != nil {
			return err
		}
		if err := s.detachAllTags(ctx, tx, id, now); err != nil {
			return err
		}
		if err := storage.Notes.Delete(ctx, tx, domain.NoteText{NoteID: id}, now); err != nil {
			return err
		}
		return storage.Objects.Delete(ctx, tx, obj, now)
	})
	if err != nil {
		return fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	s.logger.Debug("deleted note", zap.Int64("id", id))
	return nil
}

// ReadNoteHistory returns every superseded row of a note, live or deleted.
func (s *Service) ReadNoteHistory(ctx context.Context, id int64) (domain.NoteHistory, error) {
	if err := requireID("id", id); err != nil {
		return domain.NoteHistory{}, err
	}
	var h domain.NoteHistory
	err := s.run(ctx, func(tx *sqlx.Tx, _ int64) error {
		var err error
		if h.Object, err = objectHistory(ctx, tx, id, domain.TypeNote); err != nil {
			return err
		}
		if h.Text, err = storage.Notes.History(ctx, tx, "note_id", id); err != nil {
			return err
		}
		h.Tags, err = storage.ObjectTags.History(ctx, tx, "object_id", id)
		return err
	})
	if err != nil {
		return domain.NoteHistory{}, fmt.Errorf("failed to read history of note %d: %w", id, err)
	}
	return h, nil
}

func loadNote(ctx context.Context, tx *sqlx.Tx, id int64) (domain.Note, error) {
	obj, err := storage.GetObject(ctx, tx, id, domain.TypeNote)
	if err != nil {
		return domain.Note{}, err
	}
	text, err := storage.Notes.Get(ctx, tx, domain.NoteText{NoteID: id})
	if err != nil {
		return domain.Note{}, err
	}
	tagIDs, err := storage.TagIDsOf(ctx, tx, id)
	if err != nil {
		return domain.Note{}, err
	}
	return note(storage.NoteRow{ID: obj.ID, CreatedAt: obj.CreatedAt, Text: text.Text}, tagIDs), nil
}

func note(r storage.NoteRow, tagIDs []int64) domain.Note {
	return domain.Note{ID: r.ID, CreatedAt: r.CreatedAt, Text: r.Text, TagIDs: nonNil(tagIDs)}
}
