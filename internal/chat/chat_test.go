package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/suPer8Hu/agentk/internal/ai"
	"github.com/suPer8Hu/agentk/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// recordingGenerator captures every request. When gate is set, Generate
// signals started and then blocks until gate is closed.
type recordingGenerator struct {
	mu      sync.Mutex
	reqs    []ai.Request
	reply   string
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (g *recordingGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	g.mu.Lock()
	req.Context = append([]ai.Message(nil), req.Context...)
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()

	if g.gate != nil {
		if g.started != nil {
			g.started <- struct{}{}
		}
		<-g.gate
	}
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *recordingGenerator) requests() []ai.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.Request(nil), g.reqs...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(ctx context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) types() []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

func contents(msgs []store.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
