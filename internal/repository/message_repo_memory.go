package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-feed/internal/domain"
)

// MemoryMessageRepository guarda mensajes en memoria. Se usa cuando no hay DATABASE_URL y en tests.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []domain.Message
	now      func() time.Time
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{now: time.Now}
}

// NewMemoryMessageRepositoryWithClock permite fijar el reloj que asigna CreatedAt.
func NewMemoryMessageRepositoryWithClock(now func() time.Time) *MemoryMessageRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryMessageRepository{now: now}
}

func (r *MemoryMessageRepository) Insert(_ context.Context, message domain.Message) (domain.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Message{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	message.ID = id.String()
	if message.Source == "" {
		message.Source = domain.SourceDirect
	}
	// Misma resolucion que timestamptz.
	message.CreatedAt = r.now().UTC().Truncate(time.Microsecond)

	idx := sort.Search(len(r.messages), func(i int) bool {
		return domain.Less(message, r.messages[i])
	})
	r.messages = append(r.messages, domain.Message{})
	copy(r.messages[idx+1:], r.messages[idx:])
	r.messages[idx] = message
	return message, nil
}

func (r *MemoryMessageRepository) FetchPage(_ context.Context, cursor domain.Cursor, limit int) (domain.Page, error) {
	if limit <= 0 {
		return domain.Page{}, ErrInvalidLimit
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	end := len(r.messages)
	if !cursor.IsNone() {
		at, id, err := DecodeCursor(cursor)
		if err != nil {
			return domain.Page{}, err
		}
		bound := domain.Message{ID: id, CreatedAt: at}
		end = sort.Search(len(r.messages), func(i int) bool {
			return !domain.Less(r.messages[i], bound)
		})
	}

	start := end - (limit + 1)
	if start < 0 {
		start = 0
	}
	newestFirst := make([]domain.Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		newestFirst = append(newestFirst, r.messages[i])
	}
	return buildPage(newestFirst, limit), nil
}

// Len devuelve la cantidad de mensajes guardados.
func (r *MemoryMessageRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}
