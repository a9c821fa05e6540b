package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-feed/internal/domain"
)

const DefaultTypingTimeout = 3 * time.Second

// Publisher recibe los snapshots de typing. bus.Bus lo implementa.
type Publisher interface {
	Publish(evt domain.Event)
}

// Broadcaster guarda la ultima actividad de cada identidad y publica el conjunto completo
// de typists en cada cambio. Los consumidores reemplazan su vista con el ultimo snapshot,
// asi que un evento perdido se corrige solo con el siguiente.
type Broadcaster struct {
	logger    *zap.Logger
	publisher Publisher
	timeout   time.Duration
	now       func() time.Time

	// publishMu ordena los snapshots publicados igual que los cambios que los generan.
	publishMu sync.Mutex
	mu        sync.Mutex
	lastSeen  map[string]time.Time
}

func NewBroadcaster(logger *zap.Logger, publisher Publisher, timeout time.Duration) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Broadcaster{
		logger:    logger,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
	}
}

// WithClock reemplaza el reloj. Solo para tests.
func (b *Broadcaster) WithClock(now func() time.Time) *Broadcaster {
	if now != nil {
		b.now = now
	}
	return b
}

func (b *Broadcaster) Timeout() time.Duration {
	return b.timeout
}

// SignalTyping marca la identidad como activa ahora y publica el snapshot.
func (b *Broadcaster) SignalTyping(identity string) []string {
	if identity == "" {
		return b.CurrentTypists()
	}
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	now := b.now()
	b.lastSeen[identity] = now
	snapshot := b.snapshotLocked(now)
	b.mu.Unlock()

	b.publish(snapshot)
	return snapshot
}

// StopTyping quita la identidad. Solo publica si estaba en el conjunto.
func (b *Broadcaster) StopTyping(identity string) []string {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	now := b.now()
	last, ok := b.lastSeen[identity]
	delete(b.lastSeen, identity)
	snapshot := b.snapshotLocked(now)
	b.mu.Unlock()

	if ok && now.Sub(last) < b.timeout {
		b.publish(snapshot)
	}
	return snapshot
}

// ApplyRemote aplica una senal que llego desde otra instancia.
func (b *Broadcaster) ApplyRemote(identity string, typing bool) {
	if typing {
		b.SignalTyping(identity)
		return
	}
	b.StopTyping(identity)
}

// CurrentTypists filtra por now - last < timeout en el momento de la lectura.
func (b *Broadcaster) CurrentTypists() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked(b.now())
}

func (b *Broadcaster) snapshotLocked(now time.Time) []string {
	out := make([]string, 0, len(b.lastSeen))
	for identity, last := range b.lastSeen {
		if now.Sub(last) < b.timeout {
			out = append(out, identity)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep borra las entradas vencidas. Si alguna vencio publica el snapshot nuevo y devuelve true.
func (b *Broadcaster) Sweep() bool {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	now := b.now()
	expired := 0
	for identity, last := range b.lastSeen {
		if now.Sub(last) >= b.timeout {
			delete(b.lastSeen, identity)
			expired++
		}
	}
	if expired == 0 {
		b.mu.Unlock()
		return false
	}
	snapshot := b.snapshotLocked(now)
	b.mu.Unlock()

	b.logger.Debug("typing entries expired", zap.Int("expired", expired))
	b.publish(snapshot)
	return true
}

// Run ejecuta Sweep cada interval hasta que ctx se cancele.
func (b *Broadcaster) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = b.timeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

func (b *Broadcaster) publish(snapshot []string) {
	if b.publisher == nil {
		return
	}
	b.publisher.Publish(domain.TypingChanged(snapshot))
}
