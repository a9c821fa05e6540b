package client

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-feed/internal/bus"
	"chat-feed/internal/domain"
)

const (
	streamWriteWait = 10 * time.Second
	minReconnect    = 500 * time.Millisecond
	maxReconnect    = 10 * time.Second
)

var ErrStreamClosed = errors.New("stream closed")

// Stream mantiene un websocket contra /stream y se reconecta solo.
// Cada reconexion se entrega como un Gap: lo que paso mientras estaba caido se perdio.
type Stream struct {
	logger *zap.Logger
	url    string
	dialer *websocket.Dialer

	events chan domain.Event
	send   chan domain.TypingSignal

	readyOnce sync.Once
	ready     chan struct{}

	minDelay time.Duration
	maxDelay time.Duration
}

func NewStream(logger *zap.Logger, serverURL, token string, topics ...bus.Topic) (*Stream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint, err := streamURL(serverURL, token, topics)
	if err != nil {
		return nil, err
	}
	return &Stream{
		logger:   logger,
		url:      endpoint,
		dialer:   websocket.DefaultDialer,
		events:   make(chan domain.Event, bus.DefaultInboxSize),
		send:     make(chan domain.TypingSignal, 8),
		ready:    make(chan struct{}),
		minDelay: minReconnect,
		maxDelay: maxReconnect,
	}, nil
}

func streamURL(serverURL, token string, topics []bus.Topic) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/stream"
	query := url.Values{}
	if token != "" {
		query.Set("access_token", token)
	}
	if len(topics) > 0 {
		names := make([]string, 0, len(topics))
		for _, topic := range topics {
			names = append(names, string(topic))
		}
		query.Set("topics", strings.Join(names, ","))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (s *Stream) Events() <-chan domain.Event {
	return s.events
}

// Ready se cierra con la primera conexion exitosa.
func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

// SendTyping encola un TypingSignal. No bloquea: si la cola esta llena el frame se descarta,
// el timeout del servidor cubre la perdida.
func (s *Stream) SendTyping(typing bool) bool {
	select {
	case s.send <- domain.TypingSignal{Kind: domain.EventTypingChanged, Typing: typing}:
		return true
	default:
		return false
	}
}

// Run conecta y reconecta hasta que ctx se cancela. Al salir cierra Events.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	delay := s.minDelay
	connected := false
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("stream dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !s.wait(ctx, delay) {
				return nil
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
			continue
		}

		if connected {
			s.logger.Info("stream reconnected, signaling gap")
			if !s.emit(ctx, domain.Gap()) {
				conn.Close()
				return nil
			}
		}
		connected = true
		delay = s.minDelay
		s.readyOnce.Do(func() { close(s.ready) })

		err = s.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("stream disconnected", zap.Error(err))
	}
}

func (s *Stream) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()
	go s.writeLoop(connCtx, conn)

	for {
		var evt domain.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}
		// Un snapshot vacio llega sin typists por omitempty.
		if evt.Kind == domain.EventTypingChanged && evt.Typists == nil {
			evt.Typists = []string{}
		}
		if !s.emit(ctx, evt) {
			return ErrStreamClosed
		}
	}
}

func (s *Stream) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(signal); err != nil {
				s.logger.Warn("stream write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Stream) emit(ctx context.Context, evt domain.Event) bool {
	select {
	case s.events <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
