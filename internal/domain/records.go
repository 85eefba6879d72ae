package domain

// TranslateCard is the assembled view of a card returned to callers.
type TranslateCard struct {
	ID              int64    `json:"id"`
	CreatedAt       int64    `json:"createdAt"`
	TextToTranslate string   `json:"textToTranslate"`
	Translation     string   `json:"translation"`
	TagIDs          []int64  `json:"tagIds"`
	Schedule        Schedule `json:"schedule"`
	ActivatesIn     string   `json:"activatesIn"`
	Overdue         float64  `json:"overdue"`
}

// Note is the assembled view of a note returned to callers.
type Note struct {
	ID        int64   `json:"id"`
	CreatedAt int64   `json:"createdAt"`
	Text      string  `json:"text"`
	TagIDs    []int64 `json:"tagIds"`
}

// TranslateCardHistory collects every superseded row belonging to a card.
type TranslateCardHistory struct {
	Object      []Version[Object]      `json:"object"`
	Translation []Version[Translation] `json:"translation"`
	Schedule    []Version[Schedule]    `json:"schedule"`
	Tags        []Version[ObjectTag]   `json:"tags"`
}

// NoteHistory collects every superseded row belonging to a note.
type NoteHistory struct {
	Object []Version[Object]    `json:"object"`
	Text   []Version[NoteText]  `json:"text"`
	Tags   []Version[ObjectTag] `json:"tags"`
}

// OverdueQueue is the review queue: the most overdue cards first.
type OverdueQueue struct {
	Cards []TranslateCard `json:"cards"`
	// DueCount counts all due cards, not only the returned ones.
	DueCount int `json:"dueCount"`
	// NextActivatesIn is how long until the earliest not-yet-due card
	// becomes due; empty when there is none.
	NextActivatesIn string `json:"nextActivatesIn,omitempty"`
}
