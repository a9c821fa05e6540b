package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"chat-feed/internal/bus"
	"chat-feed/internal/domain"
)

func TestCollector_ObservesBus(t *testing.T) {
	c := New()
	b := bus.New(nil, 2).WithObserver(c)

	sub := b.Subscribe(bus.TopicMessages)
	if got := testutil.ToFloat64(c.subscribers); got != 1 {
		t.Fatalf("expected 1 subscriber, got %v", got)
	}

	for i := 0; i < 3; i++ {
		b.Publish(domain.MessageCreated(domain.Message{ID: "m"}))
	}
	if got := testutil.ToFloat64(c.published.WithLabelValues("message")); got != 3 {
		t.Fatalf("expected 3 published, got %v", got)
	}
	if got := testutil.ToFloat64(c.dropped); got != 1 {
		t.Fatalf("expected 1 dropped delivery, got %v", got)
	}

	sub.Close()
	if got := testutil.ToFloat64(c.subscribers); got != 0 {
		t.Fatalf("expected 0 subscribers, got %v", got)
	}
}

func TestCollector_PostCounters(t *testing.T) {
	c := New()
	c.MessagePosted(domain.SourceFederated)
	c.PostRejected("empty")
	c.PostRejected("empty")

	if got := testutil.ToFloat64(c.posted.WithLabelValues("federated")); got != 1 {
		t.Fatalf("expected 1 posted, got %v", got)
	}
	if got := testutil.ToFloat64(c.postsRejected.WithLabelValues("empty")); got != 2 {
		t.Fatalf("expected 2 rejected, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.MessagePosted(domain.SourceDirect)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `chatfeed_messages_posted_total{source="direct"} 1`) {
		t.Fatalf("missing posted counter in output:\n%s", body)
	}
}
