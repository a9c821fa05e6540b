package viewer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-feed/internal/bus"
	"chat-feed/internal/domain"
	"chat-feed/internal/history"
	"chat-feed/internal/presence"
	"chat-feed/internal/reconcile"
	"chat-feed/internal/repository"
)

type flakyPaginator struct {
	mu       sync.Mutex
	inner    history.Paginator
	failures int
	calls    int
}

func (f *flakyPaginator) FetchPage(ctx context.Context, cursor domain.Cursor, size int) (domain.Page, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return domain.Page{}, history.ErrStoreUnavailable
	}
	return f.inner.FetchPage(ctx, cursor, size)
}

type chanSource chan domain.Event

func (c chanSource) Events() <-chan domain.Event { return c }

type recorder struct {
	mu       sync.Mutex
	messages [][]domain.Message
	typing   [][]string
	gaps     int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		Messages: func(m []domain.Message) {
			r.mu.Lock()
			r.messages = append(r.messages, m)
			r.mu.Unlock()
		},
		Typing: func(t []string) {
			r.mu.Lock()
			r.typing = append(r.typing, t)
			r.mu.Unlock()
		},
		Gap: func() {
			r.mu.Lock()
			r.gaps++
			r.mu.Unlock()
		},
	}
}

func texts(messages []domain.Message) string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Text)
	}
	return strings.Join(out, ",")
}

func seedRepo(t *testing.T, n int) *repository.MemoryMessageRepository {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo := repository.NewMemoryMessageRepositoryWithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	for i := 1; i <= n; i++ {
		if _, err := repo.Insert(context.Background(), domain.Message{AuthorIdentity: "a", Text: string(rune('0' + i))}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return repo
}

func noSleep(context.Context, time.Duration) error { return nil }

func runSession(t *testing.T, s *Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return cancel, done
}

func TestSession_StartAndLoadOlder(t *testing.T) {
	repo := seedRepo(t, 5)
	rec := reconcile.New(nil, history.NewStorePaginator(nil, repo, 2, 100), 2)
	out := &recorder{}
	s := NewSession(nil, rec, chanSource(make(chan domain.Event)), out.callbacks())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := texts(s.Messages()); got != "4,5" {
		t.Fatalf("expected 4,5 got %s", got)
	}
	if err := s.LoadOlder(ctx); err != nil {
		t.Fatalf("load older: %v", err)
	}
	if err := s.LoadOlder(ctx); err != nil {
		t.Fatalf("load older: %v", err)
	}
	if got := texts(s.Messages()); got != "1,2,3,4,5" {
		t.Fatalf("expected full history, got %s", got)
	}
	if s.HasOlder() {
		t.Fatalf("expected history exhausted")
	}
	if err := s.LoadOlder(ctx); !errors.Is(err, reconcile.ErrHistoryExhausted) {
		t.Fatalf("expected ErrHistoryExhausted, got %v", err)
	}
	if len(out.messages) != 3 {
		t.Fatalf("expected 3 message renders, got %d", len(out.messages))
	}
}

func TestSession_LiveEventsFromBus(t *testing.T) {
	repo := seedRepo(t, 2)
	events := bus.New(nil, 16)
	typing := presence.NewBroadcaster(nil, events, 3*time.Second)
	sub := events.Subscribe()
	defer sub.Close()

	rec := reconcile.New(nil, history.NewStorePaginator(nil, repo, 10, 100), 10)
	out := &recorder{}
	s := NewSession(nil, rec, sub, out.callbacks())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel, done := runSession(t, s)

	msg, err := repo.Insert(context.Background(), domain.Message{AuthorIdentity: "b", Text: "3"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	events.Publish(domain.MessageCreated(msg))
	events.Publish(domain.MessageCreated(msg))
	typing.SignalTyping("carol")

	waitFor(t, func() bool { return len(s.Typists()) == 1 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if got := texts(s.Messages()); got != "1,2,3" {
		t.Fatalf("expected 1,2,3 got %s", got)
	}
	if s.Typists()[0] != "carol" {
		t.Fatalf("expected carol typing, got %v", s.Typists())
	}
	// Start + un solo render para el mensaje duplicado.
	if len(out.messages) != 2 {
		t.Fatalf("expected 2 message renders, got %d", len(out.messages))
	}
}

func TestSession_GapResyncsWithBackoff(t *testing.T) {
	repo := seedRepo(t, 3)
	pages := &flakyPaginator{inner: history.NewStorePaginator(nil, repo, 10, 100)}
	rec := reconcile.New(nil, pages, 10)
	source := make(chanSource, 4)
	out := &recorder{}

	var delays []time.Duration
	s := NewSession(nil, rec, source, out.callbacks()).WithBackoff(Backoff{Initial: time.Millisecond, Max: 3 * time.Millisecond, Attempts: 5})
	s.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := repo.Insert(context.Background(), domain.Message{AuthorIdentity: "b", Text: "4"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	pages.mu.Lock()
	pages.failures = 3
	pages.mu.Unlock()

	source <- domain.Gap()
	close(source)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := texts(s.Messages()); got != "1,2,3,4" {
		t.Fatalf("expected resync to pick up 4, got %s", got)
	}
	if out.gaps != 1 {
		t.Fatalf("expected gap callback, got %d", out.gaps)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("expected delays %v, got %v", want, delays)
		}
	}
}

func TestSession_GapGivesUpWithoutLosingMessages(t *testing.T) {
	repo := seedRepo(t, 2)
	pages := &flakyPaginator{inner: history.NewStorePaginator(nil, repo, 10, 100)}
	rec := reconcile.New(nil, pages, 10)
	source := make(chanSource, 1)
	s := NewSession(nil, rec, source, Callbacks{}).WithBackoff(Backoff{Attempts: 2})
	s.sleep = noSleep
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	pages.mu.Lock()
	pages.failures = 10
	pages.mu.Unlock()
	source <- domain.Gap()
	close(source)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := texts(s.Messages()); got != "1,2" {
		t.Fatalf("prior messages must be kept, got %s", got)
	}
	if pages.calls != 3 {
		t.Fatalf("expected start + 2 attempts, got %d calls", pages.calls)
	}
}

func TestSession_TypingSnapshotReplaces(t *testing.T) {
	rec := reconcile.New(nil, &flakyPaginator{inner: history.NewStorePaginator(nil, repository.NewMemoryMessageRepository(), 10, 100)}, 10)
	source := make(chanSource, 3)
	s := NewSession(nil, rec, source, Callbacks{})

	source <- domain.TypingChanged([]string{"alice", "bob"})
	source <- domain.TypingChanged([]string{"bob"})
	source <- domain.TypingChanged(nil)
	close(source)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := s.Typists(); len(got) != 0 {
		t.Fatalf("expected empty typists after last snapshot, got %v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
