package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"chat-feed/internal/domain"
	"chat-feed/internal/history"
)

var (
	// ErrAlreadyLoading indica que otra carga de pagina antigua sigue en curso. No es un fallo.
	ErrAlreadyLoading = errors.New("older page already loading")
	// ErrHistoryExhausted indica que no quedan paginas mas antiguas.
	ErrHistoryExhausted = errors.New("history exhausted")
)

type frontierState int

const (
	frontierNotStarted frontierState = iota
	frontierAtCursor
	frontierExhausted
)

// Reconciler mantiene la vista ordenada y sin duplicados de un solo viewer.
// Las paginas de historial y los eventos en vivo pasan por el mismo Merge.
type Reconciler struct {
	logger   *zap.Logger
	pages    history.Paginator
	pageSize int

	mu       sync.Mutex
	byID     map[string]domain.Message
	view     []domain.Message
	frontier frontierState
	cursor   domain.Cursor

	loading atomic.Bool
}

func New(logger *zap.Logger, pages history.Paginator, pageSize int) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		logger:   logger,
		pages:    pages,
		pageSize: pageSize,
		byID:     make(map[string]domain.Message),
	}
}

// Merge inserta los mensajes por id y recalcula la vista. Un id ya presente no se toca:
// los mensajes son inmutables.
func (r *Reconciler) Merge(incoming []domain.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergeLocked(incoming)
}

func (r *Reconciler) mergeLocked(incoming []domain.Message) int {
	added := 0
	for _, msg := range incoming {
		if msg.ID == "" {
			continue
		}
		if _, ok := r.byID[msg.ID]; ok {
			continue
		}
		r.byID[msg.ID] = msg
		added++
	}
	if added == 0 {
		return 0
	}

	view := make([]domain.Message, 0, len(r.byID))
	for _, msg := range r.byID {
		view = append(view, msg)
	}
	sort.Slice(view, func(i, j int) bool { return domain.Less(view[i], view[j]) })
	r.view = view
	return added
}

// LoadOlderPage pide la pagina anterior a la frontera y la fusiona.
// La primera llamada trae la pagina mas reciente.
func (r *Reconciler) LoadOlderPage(ctx context.Context) error {
	if !r.loading.CompareAndSwap(false, true) {
		return ErrAlreadyLoading
	}
	defer r.loading.Store(false)

	r.mu.Lock()
	state, cursor := r.frontier, r.cursor
	r.mu.Unlock()

	switch state {
	case frontierExhausted:
		return ErrHistoryExhausted
	case frontierNotStarted:
		cursor = domain.NoCursor
	}

	page, err := r.pages.FetchPage(ctx, cursor, r.pageSize)
	if err != nil {
		return fmt.Errorf("load older page: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeLocked(page.Items)
	r.advanceLocked(page.PrevCursor)
	return nil
}

// OnLiveEvent aplica un evento del bus. Un Gap dispara Resync; los snapshots de typing
// no tocan el conjunto de mensajes.
func (r *Reconciler) OnLiveEvent(ctx context.Context, evt domain.Event) error {
	switch evt.Kind {
	case domain.EventMessageCreated:
		if evt.Message == nil {
			r.logger.Warn("message event without payload")
			return nil
		}
		r.Merge([]domain.Message{*evt.Message})
		return nil
	case domain.EventGap:
		r.logger.Warn("event gap detected, resyncing newest page")
		return r.Resync(ctx)
	default:
		return nil
	}
}

// Resync vuelve a traer la pagina mas reciente. Los mensajes que ya estaban se conservan;
// los creados durante el gap y mas antiguos que esa pagina se pierden para esta sesion.
func (r *Reconciler) Resync(ctx context.Context) error {
	page, err := r.pages.FetchPage(ctx, domain.NoCursor, r.pageSize)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	added := r.mergeLocked(page.Items)
	if r.frontier == frontierNotStarted {
		r.advanceLocked(page.PrevCursor)
	}
	if added > 0 {
		r.logger.Info("resync merged messages", zap.Int("added", added))
	}
	return nil
}

func (r *Reconciler) advanceLocked(prev domain.Cursor) {
	if prev.IsNone() {
		r.frontier = frontierExhausted
		r.cursor = domain.NoCursor
		return
	}
	r.frontier = frontierAtCursor
	r.cursor = prev
}

// Messages devuelve una copia de la vista materializada, ascendente por (CreatedAt, ID).
func (r *Reconciler) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.view))
	copy(out, r.view)
	return out
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// HasOlder informa si puede existir otra pagina antigua.
func (r *Reconciler) HasOlder() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frontier != frontierExhausted
}

// Loading informa si hay una carga de pagina antigua en curso.
func (r *Reconciler) Loading() bool {
	return r.loading.Load()
}
