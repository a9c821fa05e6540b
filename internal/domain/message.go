package domain

import "time"

// SourceKind indica como se origina la identidad del autor.
type SourceKind string

const (
	// SourceDirect: identidad propia (email registrado).
	SourceDirect SourceKind = "direct"
	// SourceFederated: identidad externa (ej. handle de GitHub).
	SourceFederated SourceKind = "federated"
)

// Valid reporta si el valor es uno de los conocidos.
func (k SourceKind) Valid() bool {
	return k == SourceDirect || k == SourceFederated
}

// Message es inmutable una vez creado por el store.
type Message struct {
	ID             string     `json:"id"`
	AuthorIdentity string     `json:"author_identity"`
	Source         SourceKind `json:"source"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Less define el orden total (CreatedAt, ID).
func Less(a, b Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
