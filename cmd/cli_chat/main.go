package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-feed/internal/client"
	"chat-feed/internal/config"
	"chat-feed/internal/domain"
	"chat-feed/internal/reconcile"
	"chat-feed/internal/viewer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Token == "" {
		log.Fatal("CHATFEED_TOKEN is required, mint one with cmd/issue_token")
	}

	logger := zap.NewExample(zap.IncreaseLevel(zap.WarnLevel))
	defer logger.Sync()

	api := client.NewAPI(cfg.ServerURL, cfg.Token)
	stream, err := client.NewStream(logger, cfg.ServerURL, cfg.Token)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		if err := stream.Run(ctx); err != nil {
			logger.Warn("stream stopped", zap.Error(err))
		}
	}()

	select {
	case <-stream.Ready():
	case <-time.After(10 * time.Second):
		log.Fatalf("could not connect to %s", cfg.ServerURL)
	case <-ctx.Done():
		return
	}

	out := newRenderer(os.Stdout)
	session := viewer.NewSession(logger, reconcile.New(logger, api, cfg.PageSize), stream, viewer.Callbacks{
		Messages: out.messages,
		Typing:   out.typing,
		Gap:      out.gap,
	})
	if err := session.Start(ctx); err != nil {
		log.Fatalf("load history: %v", err)
	}
	go func() {
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("session stopped", zap.Error(err))
		}
		stop()
	}()

	fmt.Println("===== chat-feed =====")
	fmt.Println("Escribe un mensaje y Enter. /more carga historial, /quit sale.")

	lines := make(chan string)
	typingLimiter := rate.NewLimiter(rate.Every(time.Second), 1)
	go readInput(os.Stdin, lines, func() {
		if typingLimiter.Allow() {
			stream.SendTyping(true)
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, line, api, session, out) {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, line string, api *client.API, session *viewer.Session, out *renderer) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true
	case line == "/quit":
		return false
	case line == "/more":
		err := session.LoadOlder(ctx)
		switch {
		case errors.Is(err, reconcile.ErrHistoryExhausted):
			out.notice("no hay mensajes mas antiguos")
		case errors.Is(err, reconcile.ErrAlreadyLoading):
		case err != nil:
			out.notice("no se pudo cargar historial: " + err.Error())
		}
		return true
	default:
		postCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := api.PostMessage(postCtx, line); err != nil {
			out.notice("no se pudo enviar: " + err.Error())
		}
		return true
	}
}

// readInput lee runa por runa para poder avisar typing mientras se escribe.
func readInput(r io.Reader, lines chan<- string, onKey func()) {
	defer close(lines)
	reader := bufio.NewReader(r)
	var current strings.Builder
	for {
		ch, _, err := reader.ReadRune()
		if err != nil {
			if current.Len() > 0 {
				lines <- current.String()
			}
			return
		}
		if ch == '\n' {
			lines <- current.String()
			current.Reset()
			continue
		}
		current.WriteRune(ch)
		onKey()
	}
}

type renderer struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]bool
	newest  domain.Message
	typists string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, printed: make(map[string]bool)}
}

func (r *renderer) messages(all []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var older, newer []domain.Message
	for _, msg := range all {
		if r.printed[msg.ID] {
			continue
		}
		r.printed[msg.ID] = true
		if r.newest.ID != "" && domain.Less(msg, r.newest) {
			older = append(older, msg)
		} else {
			newer = append(newer, msg)
		}
	}
	if len(older) > 0 {
		fmt.Fprintln(r.w, "----- historial -----")
		for _, msg := range older {
			r.printLocked(msg)
		}
		fmt.Fprintln(r.w, "---------------------")
	}
	for _, msg := range newer {
		r.printLocked(msg)
		r.newest = msg
	}
}

func (r *renderer) printLocked(msg domain.Message) {
	tag := ""
	if msg.Source == domain.SourceFederated {
		tag = "@"
	}
	fmt.Fprintf(r.w, "[%s] %s%s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), tag, msg.AuthorIdentity, msg.Text)
}

func (r *renderer) typing(typists []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := strings.Join(typists, ", ")
	if joined == r.typists {
		return
	}
	r.typists = joined
	if joined != "" {
		fmt.Fprintf(r.w, "  (%s escribiendo...)\n", joined)
	}
}

func (r *renderer) gap() {
	r.notice("conexion recuperada, sincronizando")
}

func (r *renderer) notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "* %s\n", text)
}
