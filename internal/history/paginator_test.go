package history

import (
	"context"
	"errors"
	"testing"

	"chat-feed/internal/domain"
	"chat-feed/internal/repository"
)

type mockPageRepo struct {
	lastCursor domain.Cursor
	lastLimit  int
	page       domain.Page
	err        error
}

func (m *mockPageRepo) Insert(_ context.Context, message domain.Message) (domain.Message, error) {
	return message, nil
}

func (m *mockPageRepo) FetchPage(_ context.Context, cursor domain.Cursor, limit int) (domain.Page, error) {
	m.lastCursor = cursor
	m.lastLimit = limit
	if m.err != nil {
		return domain.Page{}, m.err
	}
	return m.page, nil
}

func TestStorePaginator_ClampsPageSize(t *testing.T) {
	repo := &mockPageRepo{}
	p := NewStorePaginator(nil, repo, 10, 50)

	cases := map[int]int{0: 10, -3: 10, 7: 7, 50: 50, 500: 50}
	for in, want := range cases {
		if _, err := p.FetchPage(context.Background(), domain.NoCursor, in); err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if repo.lastLimit != want {
			t.Fatalf("size %d: expected limit %d, got %d", in, want, repo.lastLimit)
		}
	}
}

func TestStorePaginator_WrapsStoreErrors(t *testing.T) {
	repo := &mockPageRepo{err: errors.New("connection refused")}
	p := NewStorePaginator(nil, repo, 0, 0)

	_, err := p.FetchPage(context.Background(), domain.NoCursor, 5)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestStorePaginator_InvalidCursor(t *testing.T) {
	repo := &mockPageRepo{err: repository.ErrInvalidCursor}
	p := NewStorePaginator(nil, repo, 0, 0)

	_, err := p.FetchPage(context.Background(), domain.Cursor("bogus"), 5)
	if !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestStorePaginator_NotConfigured(t *testing.T) {
	var p *StorePaginator
	if _, err := p.FetchPage(context.Background(), domain.NoCursor, 5); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestStorePaginator_AgainstMemoryStore(t *testing.T) {
	repo := repository.NewMemoryMessageRepository()
	ctx := context.Background()
	for _, text := range []string{"1", "2", "3"} {
		if _, err := repo.Insert(ctx, domain.Message{AuthorIdentity: "a", Text: text}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	p := NewStorePaginator(nil, repo, 10, 100)

	page, err := p.FetchPage(ctx, domain.NoCursor, 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Items) != 2 || page.Items[1].Text != "3" || page.PrevCursor.IsNone() {
		t.Fatalf("unexpected newest page: %+v", page)
	}
	older, err := p.FetchPage(ctx, page.PrevCursor, 2)
	if err != nil {
		t.Fatalf("fetch older: %v", err)
	}
	if len(older.Items) != 1 || older.Items[0].Text != "1" || !older.PrevCursor.IsNone() {
		t.Fatalf("unexpected oldest page: %+v", older)
	}
}
