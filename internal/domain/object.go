// Package domain defines the rows stored by the versioned tables and the
// records returned to callers.
package domain

// ObjectType discriminates what an object row represents.
type ObjectType string

const (
	TypeTranslateCard ObjectType = "TRANSLATE_CARD"
	TypeNote          ObjectType = "NOTE"
)

// Object is the identity row shared by cards and notes.
// IDs are allocated by the engine and never reused.
type Object struct {
	ID        int64      `db:"id" json:"id"`
	Type      ObjectType `db:"type" json:"type"`
	CreatedAt int64      `db:"created_at" json:"createdAt"`
}

// Translation is the content row of a translate card.
type Translation struct {
	CardID          int64  `db:"card_id" json:"cardId"`
	TextToTranslate string `db:"text_to_translate" json:"textToTranslate"`
	Translation     string `db:"translation" json:"translation"`
}

// NoteText is the content row of a note.
type NoteText struct {
	NoteID int64  `db:"note_id" json:"noteId"`
	Text   string `db:"text" json:"text"`
}

// Tag is a user label; names are unique.
type Tag struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CreatedAt int64  `db:"created_at" json:"createdAt"`
}

// ObjectTag links an object to a tag.
type ObjectTag struct {
	ObjectID int64 `db:"object_id" json:"objectId"`
	TagID    int64 `db:"tag_id" json:"tagId"`
}

// Version is a superseded row state together with the time it was superseded.
type Version[R any] struct {
	Row       R     `db:"row" json:"row"`
	Timestamp int64 `db:"timestamp" json:"timestamp"`
}
