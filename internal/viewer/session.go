package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-feed/internal/domain"
	"chat-feed/internal/reconcile"
)

// EventSource entrega los eventos en vivo de un viewer. bus.Subscription y client.Stream lo implementan.
type EventSource interface {
	Events() <-chan domain.Event
}

// Callbacks se invocan desde la goroutine de Run. Cualquiera puede ser nil.
type Callbacks struct {
	Messages func(messages []domain.Message)
	Typing   func(typists []string)
	Gap      func()
}

// Backoff controla los reintentos de resync despues de un Gap.
type Backoff struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int
}

var DefaultBackoff = Backoff{Initial: 200 * time.Millisecond, Max: 5 * time.Second, Attempts: 5}

// Session orquesta la vista de un viewer: historial, eventos en vivo y quien escribe.
// Todo cambio al conjunto de mensajes pasa por el Reconciler.
type Session struct {
	logger    *zap.Logger
	rec       *reconcile.Reconciler
	source    EventSource
	callbacks Callbacks
	backoff   Backoff
	sleep     func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	typists []string
}

func NewSession(logger *zap.Logger, rec *reconcile.Reconciler, source EventSource, callbacks Callbacks) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		logger:    logger,
		rec:       rec,
		source:    source,
		callbacks: callbacks,
		backoff:   DefaultBackoff,
		sleep:     sleepCtx,
		typists:   []string{},
	}
}

// WithBackoff reemplaza la politica de reintentos.
func (s *Session) WithBackoff(b Backoff) *Session {
	if b.Initial > 0 {
		s.backoff.Initial = b.Initial
	}
	if b.Max > 0 {
		s.backoff.Max = b.Max
	}
	if b.Attempts > 0 {
		s.backoff.Attempts = b.Attempts
	}
	return s
}

// Start carga la pagina mas reciente.
func (s *Session) Start(ctx context.Context) error {
	if err := s.rec.LoadOlderPage(ctx); err != nil && !errors.Is(err, reconcile.ErrHistoryExhausted) {
		return err
	}
	s.emitMessages()
	return nil
}

// LoadOlder pide la siguiente pagina antigua. ErrAlreadyLoading y ErrHistoryExhausted se devuelven
// tal cual para que la UI decida.
func (s *Session) LoadOlder(ctx context.Context) error {
	before := s.rec.Len()
	if err := s.rec.LoadOlderPage(ctx); err != nil {
		return err
	}
	if s.rec.Len() != before {
		s.emitMessages()
	}
	return nil
}

// Run consume eventos hasta que ctx se cancela o la fuente se cierra.
func (s *Session) Run(ctx context.Context) error {
	events := s.source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ctx, evt)
		}
	}
}

func (s *Session) handle(ctx context.Context, evt domain.Event) {
	switch evt.Kind {
	case domain.EventMessageCreated:
		if evt.Message == nil {
			return
		}
		if s.rec.Merge([]domain.Message{*evt.Message}) > 0 {
			s.emitMessages()
		}
	case domain.EventTypingChanged:
		s.setTypists(evt.Typists)
	case domain.EventGap:
		if s.callbacks.Gap != nil {
			s.callbacks.Gap()
		}
		if err := s.resync(ctx); err != nil {
			s.logger.Warn("resync gave up, view may be stale", zap.Error(err))
			return
		}
		s.emitMessages()
	}
}

// resync reintenta con backoff exponencial. Un fallo definitivo no es fatal: la proxima senal lo reintenta.
func (s *Session) resync(ctx context.Context) error {
	delay := s.backoff.Initial
	var err error
	for attempt := 1; attempt <= s.backoff.Attempts; attempt++ {
		err = s.rec.OnLiveEvent(ctx, domain.Gap())
		if err == nil {
			return nil
		}
		s.logger.Warn("resync failed", zap.Error(err), zap.Int("attempt", attempt))
		if attempt == s.backoff.Attempts {
			break
		}
		if serr := s.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
		if delay > s.backoff.Max {
			delay = s.backoff.Max
		}
	}
	return err
}

// setTypists reemplaza la vista completa. Los snapshots nunca se fusionan.
func (s *Session) setTypists(typists []string) {
	snapshot := make([]string, len(typists))
	copy(snapshot, typists)
	s.mu.Lock()
	s.typists = snapshot
	s.mu.Unlock()
	if s.callbacks.Typing != nil {
		s.callbacks.Typing(snapshot)
	}
}

func (s *Session) emitMessages() {
	if s.callbacks.Messages != nil {
		s.callbacks.Messages(s.rec.Messages())
	}
}

func (s *Session) Messages() []domain.Message {
	return s.rec.Messages()
}

func (s *Session) Typists() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.typists))
	copy(out, s.typists)
	return out
}

func (s *Session) HasOlder() bool {
	return s.rec.HasOlder()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
