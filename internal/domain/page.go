package domain

// Cursor es un limite opaco de paginacion. NoCursor significa que no hay pagina anterior.
type Cursor string

const NoCursor Cursor = ""

// IsNone reporta si el cursor no apunta a ninguna pagina.
func (c Cursor) IsNone() bool {
	return c == NoCursor
}

// Page es una pagina de historial ordenada ascendente por (CreatedAt, ID).
type Page struct {
	Items      []Message `json:"items"`
	PrevCursor Cursor    `json:"prev_cursor"`
}
