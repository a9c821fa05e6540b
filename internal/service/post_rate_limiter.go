package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PostRateLimiter limita cuantos mensajes puede publicar una identidad por ventana.
type PostRateLimiter interface {
	Allow(key string) bool
}

type memoryPostRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
	// lastSweep marca la ultima limpieza de identidades sin hits en la ventana.
	lastSweep time.Time
}

func normalizeRateKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// NewPostRateLimiter crea un rate limiter en memoria con ventana deslizante.
func NewPostRateLimiter(window time.Duration, max int) PostRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryPostRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *memoryPostRateLimiter) Allow(key string) bool {
	key = normalizeRateKey(key)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UTC()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweepLocked(cutoff)
		l.lastSweep = now
	}
	kept := pruneHits(l.hits[key], cutoff)
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

func (l *memoryPostRateLimiter) sweepLocked(cutoff time.Time) {
	for key, entries := range l.hits {
		kept := pruneHits(entries, cutoff)
		if len(kept) == 0 {
			delete(l.hits, key)
			continue
		}
		l.hits[key] = kept
	}
}

func pruneHits(entries []time.Time, cutoff time.Time) []time.Time {
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

const redisPostAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisPostRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisPostRateLimiter comparte el conteo entre instancias. Devuelve nil sin cliente.
func NewRedisPostRateLimiter(client *redis.Client, window time.Duration, max int) PostRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisPostRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "chatfeed:post:rl:",
	}
}

func (l *redisPostRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := normalizeRateKey(key)
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	redisKey := l.prefix + normalizedKey
	millis := l.window.Milliseconds()
	if millis <= 0 {
		millis = 60000
	}
	count, err := l.client.Eval(ctx, redisPostAllowScript, []string{redisKey}, millis).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
