package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-feed/internal/domain"
)

// ErrInvalidLimit: FetchPage necesita limit > 0. Una pagina vacia sin cursor significaria
// historial agotado.
var ErrInvalidLimit = errors.New("page limit must be positive")

// MessageRepository es el contrato del store de mensajes: append-only y paginado hacia atras.
type MessageRepository interface {
	// Insert asigna ID y CreatedAt y devuelve el mensaje persistido.
	Insert(ctx context.Context, message domain.Message) (domain.Message, error)
	// FetchPage devuelve hasta limit mensajes estrictamente anteriores al cursor,
	// ordenados ascendente. Con domain.NoCursor devuelve la pagina mas reciente.
	// Con limit <= 0 devuelve ErrInvalidLimit.
	FetchPage(ctx context.Context, cursor domain.Cursor, limit int) (domain.Page, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Insert(ctx context.Context, message domain.Message) (domain.Message, error) {
	const query = `
		INSERT INTO messages (id, author_identity, source, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Message{}, err
	}
	message.ID = id.String()
	if message.Source == "" {
		message.Source = domain.SourceDirect
	}

	err = r.pool.QueryRow(ctx, query,
		message.ID,
		message.AuthorIdentity,
		string(message.Source),
		message.Text,
	).Scan(&message.CreatedAt)
	if err != nil {
		return domain.Message{}, err
	}
	message.CreatedAt = message.CreatedAt.UTC()
	return message, nil
}

func (r *PgMessageRepository) FetchPage(ctx context.Context, cursor domain.Cursor, limit int) (domain.Page, error) {
	if limit <= 0 {
		return domain.Page{}, ErrInvalidLimit
	}
	const newest = `
		SELECT id, author_identity, source, text, created_at
		FROM messages
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	const before = `
		SELECT id, author_identity, source, text, created_at
		FROM messages
		WHERE (created_at, id) < ($1, $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	// Pedimos uno extra para saber si existe una pagina anterior.
	var (
		rows pgx.Rows
		err  error
	)
	if cursor.IsNone() {
		rows, err = r.pool.Query(ctx, newest, limit+1)
	} else {
		at, id, decodeErr := DecodeCursor(cursor)
		if decodeErr != nil {
			return domain.Page{}, decodeErr
		}
		rows, err = r.pool.Query(ctx, before, at, id, limit+1)
	}
	if err != nil {
		return domain.Page{}, err
	}
	defer rows.Close()

	var newestFirst []domain.Message
	for rows.Next() {
		var msg domain.Message
		var source string
		if err := rows.Scan(&msg.ID, &msg.AuthorIdentity, &source, &msg.Text, &msg.CreatedAt); err != nil {
			return domain.Page{}, err
		}
		msg.Source = domain.SourceKind(source)
		msg.CreatedAt = msg.CreatedAt.UTC()
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return domain.Page{}, err
	}

	return buildPage(newestFirst, limit), nil
}

// buildPage recibe hasta limit+1 mensajes del mas nuevo al mas viejo.
func buildPage(newestFirst []domain.Message, limit int) domain.Page {
	hasOlder := len(newestFirst) > limit
	if hasOlder {
		newestFirst = newestFirst[:limit]
	}
	items := make([]domain.Message, len(newestFirst))
	for i, msg := range newestFirst {
		items[len(newestFirst)-1-i] = msg
	}
	page := domain.Page{Items: items}
	if hasOlder && len(items) > 0 {
		page.PrevCursor = EncodeCursor(items[0])
	}
	return page
}
