package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"chat-feed/internal/domain"
)

func TestRenderer_PrintsNewAndOlderOnce(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := func(id string, sec int) domain.Message {
		return domain.Message{ID: id, AuthorIdentity: "alice", Text: "t" + id, CreatedAt: base.Add(time.Duration(sec) * time.Second)}
	}

	r.messages([]domain.Message{m("3", 3), m("4", 4)})
	r.messages([]domain.Message{m("3", 3), m("4", 4), m("5", 5)})
	r.messages([]domain.Message{m("1", 1), m("2", 2), m("3", 3), m("4", 4), m("5", 5)})

	out := buf.String()
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		if strings.Count(out, id) != 1 {
			t.Fatalf("expected %s once in output:\n%s", id, out)
		}
	}
	if !strings.Contains(out, "historial") || strings.Index(out, "t1") < strings.Index(out, "t5") {
		t.Fatalf("older page should be printed after as history block:\n%s", out)
	}
}

func TestReadInput_SignalsTypingPerRune(t *testing.T) {
	lines := make(chan string, 4)
	keys := 0
	readInput(strings.NewReader("hola\n/quit"), lines, func() { keys++ })

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	if strings.Join(got, "|") != "hola|/quit" {
		t.Fatalf("unexpected lines %v", got)
	}
	if keys != 9 {
		t.Fatalf("expected 9 key signals, got %d", keys)
	}
}

func TestRenderer_TypingDeduplicates(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	r.typing([]string{"bob"})
	r.typing([]string{"bob"})
	r.typing([]string{})
	if strings.Count(buf.String(), "bob escribiendo") != 1 {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}
