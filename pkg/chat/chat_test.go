package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mentori/liveclass/pkg/api"
	"github.com/mentori/liveclass/pkg/logger"
)

type fakePoster struct {
	mu   sync.Mutex
	sent []api.ChatMessage
}

func (p *fakePoster) PostChat(_ context.Context, msg api.ChatMessage) error {
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	return nil
}

type fakeStream struct {
	events chan api.PushEvent
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan api.PushEvent, 4)}
}

func (s *fakeStream) Events() <-chan api.PushEvent { return s.events }
func (s *fakeStream) Close()                       { s.once.Do(func() { close(s.events) }) }

func TestSendPostsRoomScopedMessage(t *testing.T) {
	poster := &fakePoster{}
	stream := newFakeStream()
	c := Open(42, "alice", poster, stream, logger.Default())
	defer c.Close()

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	poster.mu.Lock()
	defer poster.mu.Unlock()
	if len(poster.sent) != 1 {
		t.Fatalf("%d messages posted, want 1", len(poster.sent))
	}
	msg := poster.sent[0]
	if msg.RoomId != 42 || msg.From != "alice" || msg.Text != "hello" || msg.SentAt == 0 {
		t.Fatalf("posted %+v", msg)
	}
}

func TestInboundChatEventsAreDecoded(t *testing.T) {
	stream := newFakeStream()
	c := Open(42, "alice", &fakePoster{}, stream, logger.Default())
	defer c.Close()

	payload, _ := json.Marshal(api.ChatMessage{RoomId: 42, From: "bob", Text: "hi"})
	stream.events <- api.PushEvent{Name: "SOMETHING_ELSE"}
	stream.events <- api.PushEvent{Name: api.EventChat, Data: payload}

	select {
	case msg := <-c.Messages():
		if msg.From != "bob" || msg.Text != "hi" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no chat message delivered")
	}
}

func TestBadPayloadIsSkipped(t *testing.T) {
	stream := newFakeStream()
	c := Open(42, "alice", &fakePoster{}, stream, logger.Default())
	defer c.Close()

	stream.events <- api.PushEvent{Name: api.EventChat, Data: []byte("not json")}
	payload, _ := json.Marshal(api.ChatMessage{From: "bob", Text: "after"})
	stream.events <- api.PushEvent{Name: api.EventChat, Data: payload}

	select {
	case msg := <-c.Messages():
		if msg.Text != "after" {
			t.Fatalf("got %+v, want the message after the bad payload", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pump died on a malformed payload")
	}
}

func TestCloseEndsTheFeed(t *testing.T) {
	stream := newFakeStream()
	c := Open(42, "alice", &fakePoster{}, stream, logger.Default())
	c.Close()
	c.Close()

	select {
	case _, ok := <-c.Messages():
		if ok {
			t.Fatal("no message expected after close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("messages channel did not close")
	}
}
