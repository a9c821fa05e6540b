package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chat-feed/internal/domain"
	"chat-feed/internal/history"
	"chat-feed/internal/service"
)

var ErrUnauthorized = errors.New("unauthorized")

const httpTimeout = 5 * time.Second

// API habla con el servidor por HTTP. Implementa history.Paginator para que el
// Reconciler de un viewer remoto pagine igual que uno local.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: httpTimeout},
	}
}

// WithHTTPClient reemplaza el cliente HTTP. Se usa en tests.
func (a *API) WithHTTPClient(c *http.Client) *API {
	if c != nil {
		a.http = c
	}
	return a
}

func (a *API) FetchPage(ctx context.Context, cursor domain.Cursor, pageSize int) (domain.Page, error) {
	query := url.Values{}
	if !cursor.IsNone() {
		query.Set("cursor", string(cursor))
	}
	if pageSize > 0 {
		query.Set("limit", strconv.Itoa(pageSize))
	}
	endpoint := a.baseURL + "/messages"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var page domain.Page
	if err := a.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return domain.Page{}, err
	}
	if page.Items == nil {
		page.Items = []domain.Message{}
	}
	return page, nil
}

func (a *API) PostMessage(ctx context.Context, text string) (domain.Message, error) {
	var resp struct {
		Message domain.Message `json:"message"`
	}
	payload := map[string]string{"text": text}
	if err := a.doJSON(ctx, http.MethodPost, a.baseURL+"/messages", payload, &resp); err != nil {
		return domain.Message{}, err
	}
	return resp.Message, nil
}

func (a *API) SignalTyping(ctx context.Context, typing bool) error {
	payload := map[string]bool{"typing": typing}
	return a.doJSON(ctx, http.MethodPost, a.baseURL+"/typing", payload, nil)
}

func (a *API) CurrentTypists(ctx context.Context) ([]string, error) {
	var resp struct {
		Typists []string `json:"typists"`
	}
	if err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/typing", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Typists == nil {
		resp.Typists = []string{}
	}
	return resp.Typists, nil
}

func (a *API) doJSON(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", history.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	msg := readResponseError(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return service.ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(msg, "cursor"):
		return history.ErrInvalidCursor
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", service.ErrMalformedMessage, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d: %s", history.ErrStoreUnavailable, resp.StatusCode, msg)
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
}

func readResponseError(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
