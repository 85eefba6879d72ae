package domain

// Schedule is the spaced-repetition state of a translate card.
// At write time NextAccessAt == UpdatedAt + NextAccessInMillis.
type Schedule struct {
	CardID             int64  `db:"card_id" json:"cardId"`
	UpdatedAt          int64  `db:"updated_at" json:"updatedAt"`
	OrigDelay          string `db:"orig_delay" json:"origDelay"`
	Delay              string `db:"delay" json:"delay"`
	NextAccessInMillis int64  `db:"next_access_in_millis" json:"nextAccessInMillis"`
	NextAccessAt       int64  `db:"next_access_at" json:"nextAccessAt"`
}
