package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/agentk/internal/chat"
)

type fakeChannel struct {
	key  string
	msgs []amqp.Publishing
	err  error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestPublisher_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, queue: "agentk.events"}
	var _ chat.Notifier = p

	ev := chat.Event{Type: chat.EventTurnSettled, SessionID: "s1", ModelID: "gpt-test", MessageID: 7, At: 1700000000000}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.key != "agentk.events" || len(ch.msgs) != 1 {
		t.Fatalf("unexpected publish: key=%q n=%d", ch.key, len(ch.msgs))
	}
	msg := ch.msgs[0]
	if msg.DeliveryMode != amqp.Persistent || msg.Type != "turn.settled" || msg.ContentType != "application/json" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var got chat.Event
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != ev {
		t.Fatalf("got %+v want %+v", got, ev)
	}
}

func TestPublisher_ReturnsChannelError(t *testing.T) {
	p := &Publisher{ch: &fakeChannel{err: amqp.ErrClosed}, queue: "q"}
	if err := p.Publish(context.Background(), chat.Event{Type: chat.EventSessionDeleted}); !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
