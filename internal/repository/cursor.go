package repository

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"chat-feed/internal/domain"
)

// ErrInvalidCursor se devuelve cuando el cursor no fue emitido por este store.
var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor codifica el limite (created_at, id) del mensaje mas antiguo de una pagina.
func EncodeCursor(msg domain.Message) domain.Cursor {
	raw := strconv.FormatInt(msg.CreatedAt.UnixMicro(), 10) + "|" + msg.ID
	return domain.Cursor(base64.RawURLEncoding.EncodeToString([]byte(raw)))
}

// DecodeCursor revierte EncodeCursor.
func DecodeCursor(cursor domain.Cursor) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(cursor))
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	micros, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", ErrInvalidCursor
	}
	usec, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return time.UnixMicro(usec).UTC(), id, nil
}
