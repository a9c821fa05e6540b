package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat-feed/internal/domain"
)

const DefaultRedisChannel = "chatfeed:events"

// TypingApplier aplica señales de typing recibidas desde otra instancia.
type TypingApplier interface {
	ApplyRemote(identity string, typing bool)
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// envelope es el formato en el canal de Redis. Origin evita re-entregar lo propio.
type envelope struct {
	Origin   string           `json:"origin"`
	Kind     domain.EventKind `json:"type"`
	Message  *domain.Message  `json:"message,omitempty"`
	Identity string           `json:"identity,omitempty"`
	Typing   bool             `json:"typing,omitempty"`
}

// RedisBridge replica mensajes y señales de typing entre instancias via Redis pub/sub.
type RedisBridge struct {
	logger    *zap.Logger
	client    *redis.Client
	publisher redisPublisher
	channel   string
	origin    string
	local     *Bus
	typing    TypingApplier

	subscribed bool
	retryDelay time.Duration
}

func NewRedisBridge(logger *zap.Logger, client *redis.Client, channel string, local *Bus, typing TypingApplier) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	bridge := &RedisBridge{
		logger:     logger,
		client:     client,
		channel:    channel,
		origin:     uuid.NewString(),
		local:      local,
		typing:     typing,
		retryDelay: time.Second,
	}
	if client != nil {
		bridge.publisher = client
	}
	return bridge
}

// RelayMessage publica un mensaje ya entregado localmente para las demas instancias.
func (b *RedisBridge) RelayMessage(ctx context.Context, msg domain.Message) error {
	return b.publish(ctx, envelope{Kind: domain.EventMessageCreated, Message: &msg})
}

// RelayTyping publica una señal de typing (no el snapshot: cada instancia arma el suyo).
func (b *RedisBridge) RelayTyping(ctx context.Context, identity string, typing bool) error {
	return b.publish(ctx, envelope{Kind: domain.EventTypingChanged, Identity: identity, Typing: typing})
}

func (b *RedisBridge) publish(ctx context.Context, env envelope) error {
	if b == nil || b.publisher == nil {
		return nil
	}
	env.Origin = b.origin
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return b.publisher.Publish(ctx, b.channel, payload).Err()
}

// Run escucha el canal hasta que ctx se cancela. Cualquier error de lectura o
// re-suscripcion se traduce en un Gap para los suscriptores locales.
func (b *RedisBridge) Run(ctx context.Context) error {
	if b.client == nil {
		return errors.New("redis bridge not configured")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("redis receive failed, signaling gap", zap.Error(err))
			b.local.SignalGap()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}
		b.handle(msg)
	}
}

func (b *RedisBridge) handle(msg interface{}) {
	switch m := msg.(type) {
	case *redis.Subscription:
		if m.Kind != "subscribe" {
			return
		}
		// La primera confirmacion es la suscripcion inicial; las siguientes son reconexiones.
		if b.subscribed {
			b.logger.Warn("redis resubscribed, signaling gap", zap.String("channel", m.Channel))
			b.local.SignalGap()
		}
		b.subscribed = true
	case *redis.Message:
		b.handleEnvelope([]byte(m.Payload))
	}
}

func (b *RedisBridge) handleEnvelope(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn("discarding malformed redis envelope", zap.Error(err))
		return
	}
	if env.Origin == b.origin {
		return
	}
	switch env.Kind {
	case domain.EventMessageCreated:
		if env.Message == nil {
			return
		}
		b.local.Publish(domain.MessageCreated(*env.Message))
	case domain.EventTypingChanged:
		if b.typing != nil && env.Identity != "" {
			b.typing.ApplyRemote(env.Identity, env.Typing)
		}
	}
}
