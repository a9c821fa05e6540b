package domain

// Viewer es la identidad autenticada que provee la capa de auth externa.
type Viewer struct {
	ID       string     `json:"id"`
	Identity string     `json:"identity"`
	Source   SourceKind `json:"source"`
}
