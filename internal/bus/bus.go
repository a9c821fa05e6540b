package bus

import (
	"sync"

	"go.uber.org/zap"

	"chat-feed/internal/domain"
)

// Topic agrupa los eventos que le interesan a una suscripcion.
type Topic string

const (
	TopicMessages Topic = "messages"
	TopicTyping   Topic = "typing"
)

const DefaultInboxSize = 64

// Observer recibe contadores del bus. Lo implementa el paquete metrics.
type Observer interface {
	EventPublished(kind domain.EventKind)
	DeliveryDropped()
	SubscribersChanged(n int)
}

type nopObserver struct{}

func (nopObserver) EventPublished(domain.EventKind) {}
func (nopObserver) DeliveryDropped()                {}
func (nopObserver) SubscribersChanged(int)          {}

// Bus hace fan-out de eventos a todas las suscripciones activas.
// Publish nunca bloquea: cada suscripcion tiene un inbox acotado y, si se llena,
// el suscriptor recibe un Gap en lugar de los eventos perdidos.
type Bus struct {
	logger    *zap.Logger
	inboxSize int
	observer  Observer

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

func New(logger *zap.Logger, inboxSize int) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Se necesita lugar para el Gap y el evento que lo provoco.
	if inboxSize < 2 {
		inboxSize = DefaultInboxSize
	}
	return &Bus{
		logger:    logger,
		inboxSize: inboxSize,
		observer:  nopObserver{},
		subs:      make(map[uint64]*Subscription),
	}
}

// WithObserver reemplaza el observer. Llamar antes de publicar.
func (b *Bus) WithObserver(observer Observer) *Bus {
	if observer != nil {
		b.observer = observer
	}
	return b
}

// Subscribe registra una suscripcion a los topics dados (todos si no se indica ninguno).
// Los Gap se entregan siempre.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	kinds := map[domain.EventKind]bool{domain.EventGap: true}
	if len(topics) == 0 {
		topics = []Topic{TopicMessages, TopicTyping}
	}
	for _, topic := range topics {
		switch topic {
		case TopicMessages:
			kinds[domain.EventMessageCreated] = true
		case TopicTyping:
			kinds[domain.EventTypingChanged] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		bus:    b,
		kinds:  kinds,
		events: make(chan domain.Event, b.inboxSize),
	}
	b.subs[sub.id] = sub
	b.observer.SubscribersChanged(len(b.subs))
	return sub
}

// Publish entrega el evento a cada suscripcion interesada sin bloquear.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.observer.EventPublished(evt.Kind)
	for _, sub := range b.subs {
		if !sub.kinds[evt.Kind] {
			continue
		}
		if dropped := sub.deliver(evt); dropped > 0 {
			b.observer.DeliveryDropped()
			b.logger.Warn("subscriber inbox overflow, gap signaled",
				zap.Uint64("subscription", sub.id),
				zap.Int("dropped", dropped),
			)
		}
	}
}

// SignalGap avisa a todos los suscriptores que el transporte pudo perder eventos.
func (b *Bus) SignalGap() {
	b.Publish(domain.Gap())
}

// Len devuelve la cantidad de suscripciones activas.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Shutdown cierra todas las suscripciones.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.observer.SubscribersChanged(0)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.closeEvents()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; ok {
		delete(b.subs, id)
		b.observer.SubscribersChanged(len(b.subs))
	}
}
