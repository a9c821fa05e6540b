package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"chat-feed/internal/bus"
	"chat-feed/internal/domain"
	"chat-feed/internal/history"
	"chat-feed/internal/repository"
)

const DefaultMessageMaxLength = 2000

var (
	ErrChatServiceNotConfigured = errors.New("chat service not configured")
	// ErrMalformedMessage: texto vacio, demasiado largo o con utf-8 invalido. Se rechaza antes de llegar al store.
	ErrMalformedMessage = errors.New("malformed message")
	ErrRateLimited      = errors.New("rate limited")
)

// EventBus es la parte del bus que usa el servicio.
type EventBus interface {
	Publish(evt domain.Event)
	Subscribe(topics ...bus.Topic) *bus.Subscription
}

// Relay reenvia eventos locales a otras instancias. bus.RedisBridge lo implementa.
type Relay interface {
	RelayMessage(ctx context.Context, msg domain.Message) error
	RelayTyping(ctx context.Context, identity string, typing bool) error
}

// Presence es la parte del broadcaster que usa el servicio.
type Presence interface {
	SignalTyping(identity string) []string
	StopTyping(identity string) []string
	CurrentTypists() []string
}

// PostObserver cuenta mensajes publicados y rechazados.
type PostObserver interface {
	MessagePosted(source domain.SourceKind)
	PostRejected(reason string)
}

type nopPostObserver struct{}

func (nopPostObserver) MessagePosted(domain.SourceKind) {}
func (nopPostObserver) PostRejected(string)             {}

// ChatService une store, bus y presencia: postMessage, signalTyping y las suscripciones.
type ChatService struct {
	logger    *zap.Logger
	repo      repository.MessageRepository
	pages     history.Paginator
	events    EventBus
	presence  Presence
	relay     Relay
	limiter   PostRateLimiter
	observer  PostObserver
	maxLength int
}

type ChatServiceOption func(*ChatService)

func WithRelay(relay Relay) ChatServiceOption {
	return func(s *ChatService) { s.relay = relay }
}

func WithPostRateLimiter(limiter PostRateLimiter) ChatServiceOption {
	return func(s *ChatService) { s.limiter = limiter }
}

func WithPostObserver(observer PostObserver) ChatServiceOption {
	return func(s *ChatService) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func WithMessageMaxLength(n int) ChatServiceOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

func NewChatService(logger *zap.Logger, repo repository.MessageRepository, pages history.Paginator, events EventBus, presence Presence, opts ...ChatServiceOption) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ChatService{
		logger:    logger,
		repo:      repo,
		pages:     pages,
		events:    events,
		presence:  presence,
		observer:  nopPostObserver{},
		maxLength: DefaultMessageMaxLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PostMessage valida, persiste y publica. El autor deja de figurar como typist.
func (s *ChatService) PostMessage(ctx context.Context, author domain.Viewer, text string) (domain.Message, error) {
	if s == nil || s.repo == nil || s.events == nil {
		return domain.Message{}, ErrChatServiceNotConfigured
	}

	identity := strings.TrimSpace(author.Identity)
	text = strings.TrimSpace(text)
	if identity == "" {
		s.observer.PostRejected("identity")
		return domain.Message{}, fmt.Errorf("%w: missing author identity", ErrMalformedMessage)
	}
	if text == "" {
		s.observer.PostRejected("empty")
		return domain.Message{}, fmt.Errorf("%w: empty text", ErrMalformedMessage)
	}
	if !utf8.ValidString(text) {
		s.observer.PostRejected("encoding")
		return domain.Message{}, fmt.Errorf("%w: invalid utf-8", ErrMalformedMessage)
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		s.observer.PostRejected("oversized")
		return domain.Message{}, fmt.Errorf("%w: text exceeds %d characters", ErrMalformedMessage, s.maxLength)
	}
	if s.limiter != nil && !s.limiter.Allow(identity) {
		s.observer.PostRejected("rate_limited")
		return domain.Message{}, ErrRateLimited
	}

	source := author.Source
	if !source.Valid() {
		source = domain.SourceDirect
	}
	msg, err := s.repo.Insert(ctx, domain.Message{
		AuthorIdentity: identity,
		Source:         source,
		Text:           text,
	})
	if err != nil {
		s.logger.Error("insert message failed", zap.Error(err), zap.String("author", identity))
		return domain.Message{}, fmt.Errorf("%w: %v", history.ErrStoreUnavailable, err)
	}
	s.observer.MessagePosted(msg.Source)

	s.events.Publish(domain.MessageCreated(msg))
	if s.relay != nil {
		if err := s.relay.RelayMessage(ctx, msg); err != nil {
			s.logger.Warn("relay message failed", zap.Error(err), zap.String("message_id", msg.ID))
		}
	}
	s.clearTyping(ctx, identity)
	return msg, nil
}

func (s *ChatService) clearTyping(ctx context.Context, identity string) {
	if s.presence == nil {
		return
	}
	wasTyping := false
	for _, typist := range s.presence.CurrentTypists() {
		if typist == identity {
			wasTyping = true
			break
		}
	}
	if !wasTyping {
		return
	}
	s.presence.StopTyping(identity)
	s.relayTyping(ctx, identity, false)
}

// SignalTyping refresca la actividad del viewer. El throttling queda del lado del llamador.
func (s *ChatService) SignalTyping(ctx context.Context, viewer domain.Viewer) ([]string, error) {
	if s == nil || s.presence == nil {
		return nil, ErrChatServiceNotConfigured
	}
	identity := strings.TrimSpace(viewer.Identity)
	if identity == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrMalformedMessage)
	}
	snapshot := s.presence.SignalTyping(identity)
	s.relayTyping(ctx, identity, true)
	return snapshot, nil
}

func (s *ChatService) StopTyping(ctx context.Context, viewer domain.Viewer) ([]string, error) {
	if s == nil || s.presence == nil {
		return nil, ErrChatServiceNotConfigured
	}
	identity := strings.TrimSpace(viewer.Identity)
	if identity == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrMalformedMessage)
	}
	snapshot := s.presence.StopTyping(identity)
	s.relayTyping(ctx, identity, false)
	return snapshot, nil
}

func (s *ChatService) relayTyping(ctx context.Context, identity string, typing bool) {
	if s.relay == nil {
		return
	}
	relayCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.relay.RelayTyping(relayCtx, identity, typing); err != nil {
		s.logger.Warn("relay typing failed", zap.Error(err), zap.String("identity", identity))
	}
}

func (s *ChatService) CurrentTypists() []string {
	if s == nil || s.presence == nil {
		return []string{}
	}
	return s.presence.CurrentTypists()
}

// FetchPage delega en el paginador de historial.
func (s *ChatService) FetchPage(ctx context.Context, cursor domain.Cursor, size int) (domain.Page, error) {
	if s == nil || s.pages == nil {
		return domain.Page{}, ErrChatServiceNotConfigured
	}
	return s.pages.FetchPage(ctx, cursor, size)
}

// SubscribeToMessages entrega MessageCreated y Gap.
func (s *ChatService) SubscribeToMessages() (*bus.Subscription, error) {
	return s.Subscribe(bus.TopicMessages)
}

// SubscribeToTyping entrega snapshots de typing y Gap.
func (s *ChatService) SubscribeToTyping() (*bus.Subscription, error) {
	return s.Subscribe(bus.TopicTyping)
}

func (s *ChatService) Subscribe(topics ...bus.Topic) (*bus.Subscription, error) {
	if s == nil || s.events == nil {
		return nil, ErrChatServiceNotConfigured
	}
	return s.events.Subscribe(topics...), nil
}
