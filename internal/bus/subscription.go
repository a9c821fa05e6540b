package bus

import (
	"sync"

	"chat-feed/internal/domain"
)

// Subscription es el handle de un suscriptor. Los eventos llegan en orden FIFO
// por Events() hasta que se llama Close.
type Subscription struct {
	id     uint64
	bus    *Bus
	kinds  map[domain.EventKind]bool
	events chan domain.Event

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Events devuelve el canal de eventos. Se cierra al cerrar la suscripcion.
func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// Close libera la suscripcion. Es idempotente.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		s.closeEvents()
	})
}

func (s *Subscription) closeEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// deliver encola sin bloquear y devuelve cuantos eventos se descartaron.
// Con el inbox lleno se vacia la cola, se encola un Gap y luego el evento actual,
// asi el ultimo snapshot de typing no se pierde.
func (s *Subscription) deliver(evt domain.Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	select {
	case s.events <- evt:
		return 0
	default:
	}

	dropped := 0
drain:
	for {
		select {
		case <-s.events:
			dropped++
		default:
			break drain
		}
	}
	s.events <- domain.Gap()
	if evt.Kind != domain.EventGap {
		s.events <- evt
	}
	return dropped
}
