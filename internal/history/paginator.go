package history

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chat-feed/internal/domain"
	"chat-feed/internal/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var (
	// ErrStoreUnavailable es transitorio: el llamador puede reintentar.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidCursor    = errors.New("invalid cursor")
)

// Paginator traduce un cursor a una pagina acotada de historial.
type Paginator interface {
	FetchPage(ctx context.Context, cursor domain.Cursor, pageSize int) (domain.Page, error)
}

// StorePaginator implementa Paginator sobre el repositorio de mensajes. No guarda estado por llamada.
type StorePaginator struct {
	logger      *zap.Logger
	repo        repository.MessageRepository
	defaultSize int
	maxSize     int
}

func NewStorePaginator(logger *zap.Logger, repo repository.MessageRepository, defaultSize, maxSize int) *StorePaginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if defaultSize <= 0 || defaultSize > maxSize {
		defaultSize = DefaultPageSize
	}
	return &StorePaginator{
		logger:      logger,
		repo:        repo,
		defaultSize: defaultSize,
		maxSize:     maxSize,
	}
}

func (p *StorePaginator) FetchPage(ctx context.Context, cursor domain.Cursor, pageSize int) (domain.Page, error) {
	if p == nil || p.repo == nil {
		return domain.Page{}, ErrStoreUnavailable
	}
	page, err := p.repo.FetchPage(ctx, cursor, p.clamp(pageSize))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return domain.Page{}, ErrInvalidCursor
		}
		p.logger.Warn("fetch page failed", zap.Error(err), zap.String("cursor", string(cursor)))
		return domain.Page{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if page.Items == nil {
		page.Items = []domain.Message{}
	}
	return page, nil
}

func (p *StorePaginator) clamp(size int) int {
	switch {
	case size <= 0:
		return p.defaultSize
	case size > p.maxSize:
		return p.maxSize
	default:
		return size
	}
}
