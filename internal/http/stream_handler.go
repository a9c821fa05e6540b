package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-feed/internal/bus"
	"chat-feed/internal/domain"
	"chat-feed/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1024
)

// StreamHandler empuja los eventos del bus a un websocket. Un frame por evento, en JSON.
type StreamHandler struct {
	logger   *zap.Logger
	chat     *service.ChatService
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *zap.Logger, chat *service.ChatService) *StreamHandler {
	return &StreamHandler{
		logger: logger,
		chat:   chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Stream maneja GET /stream?topics=messages,typing.
func (h *StreamHandler) Stream(c *gin.Context) {
	viewer, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	topics, err := parseTopics(c.Query("topics"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.chat.Subscribe(topics...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stream not available"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.logger.Info("stream opened", zap.String("identity", viewer.Identity))

	done := make(chan struct{})
	go h.writePump(conn, sub, wantsTyping(topics), done)
	h.readPump(c, conn, viewer)

	close(done)
	sub.Close()
	h.logger.Info("stream closed", zap.String("identity", viewer.Identity))
}

// readPump procesa los TypingSignal del cliente hasta que la conexion se cae.
func (h *StreamHandler) readPump(c *gin.Context, conn *websocket.Conn, viewer domain.Viewer) {
	defer conn.Close()
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request.Context()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var signal domain.TypingSignal
		if err := json.Unmarshal(payload, &signal); err != nil || signal.Kind != domain.EventTypingChanged {
			h.logger.Debug("ignoring stream frame", zap.String("identity", viewer.Identity))
			continue
		}
		if signal.Typing {
			_, err = h.chat.SignalTyping(ctx, viewer)
		} else {
			_, err = h.chat.StopTyping(ctx, viewer)
		}
		if err != nil {
			h.logger.Warn("typing signal failed", zap.Error(err), zap.String("identity", viewer.Identity))
		}
	}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, sub *bus.Subscription, typing bool, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	// El snapshot inicial evita esperar al proximo cambio para mostrar quien escribe.
	if typing {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(domain.TypingChanged(h.chat.CurrentTypists())); err != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case evt, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseTopics(raw string) ([]bus.Topic, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []bus.Topic{bus.TopicMessages, bus.TopicTyping}, nil
	}
	var topics []bus.Topic
	for _, part := range strings.Split(raw, ",") {
		switch topic := bus.Topic(strings.TrimSpace(part)); topic {
		case bus.TopicMessages, bus.TopicTyping:
			topics = append(topics, topic)
		case "":
		default:
			return nil, errUnknownTopic(topic)
		}
	}
	if len(topics) == 0 {
		return []bus.Topic{bus.TopicMessages, bus.TopicTyping}, nil
	}
	return topics, nil
}

type errUnknownTopic bus.Topic

func (e errUnknownTopic) Error() string {
	return "unknown topic " + string(e)
}

func wantsTyping(topics []bus.Topic) bool {
	for _, topic := range topics {
		if topic == bus.TopicTyping {
			return true
		}
	}
	return false
}
