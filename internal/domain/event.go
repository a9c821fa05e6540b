package domain

// EventKind identifica la variante de un Event.
type EventKind string

const (
	EventMessageCreated EventKind = "message"
	EventTypingChanged  EventKind = "typing"
	// EventGap avisa que el stream pudo haber perdido eventos.
	EventGap EventKind = "gap"
)

// Event es lo que entrega el bus a cada suscriptor.
// Message solo se completa en EventMessageCreated y Typists solo en EventTypingChanged.
type Event struct {
	Kind    EventKind `json:"type"`
	Message *Message  `json:"message,omitempty"`
	Typists []string  `json:"typists,omitempty"`
}

func MessageCreated(msg Message) Event {
	return Event{Kind: EventMessageCreated, Message: &msg}
}

// TypingChanged lleva el snapshot completo de quienes escriben, nunca un delta.
func TypingChanged(typists []string) Event {
	if typists == nil {
		typists = []string{}
	}
	return Event{Kind: EventTypingChanged, Typists: typists}
}

func Gap() Event {
	return Event{Kind: EventGap}
}

// TypingSignal es el frame que manda un viewer por el stream para avisar que escribe o dejo de escribir.
type TypingSignal struct {
	Kind   EventKind `json:"type"`
	Typing bool      `json:"typing"`
}
