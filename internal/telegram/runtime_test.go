package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quailyquaily/chipdesk/conversation"
)

type echoHandler struct {
	mu  sync.Mutex
	got []conversation.Inbound
}

func (h *echoHandler) Handle(ctx context.Context, in conversation.Inbound, reply conversation.ReplyFunc) error {
	h.mu.Lock()
	h.got = append(h.got, in)
	h.mu.Unlock()
	return reply(ctx, "echo: "+in.Text)
}

type fakeBotAPI struct {
	polls atomic.Int32
	sent  chan sendMessageRequest
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"username":"chipdesk_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		if f.polls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":10,"message":{"message_id":1,"chat":{"id":55,"type":"private"},"from":{"id":55,"first_name":"Juan","last_name":"Perez"},"text":" hola "}},
				{"update_id":11,"message":{"message_id":2,"chat":{"id":-100,"type":"group"},"from":{"id":56,"first_name":"Ana"},"text":"hola"}},
				{"update_id":12,"message":{"message_id":3,"chat":{"id":57,"type":"private"},"from":{"id":57,"is_bot":true},"text":"bot"}}
			]}`))
			return
		}
		if got := r.URL.Query().Get("offset"); got != "13" {
			http.Error(w, "bad offset "+got, http.StatusBadRequest)
			return
		}
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		var req sendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.sent <- req
		_, _ = w.Write([]byte(`{"ok":true}`))
	default:
		http.NotFound(w, r)
	}
}

func TestRunDispatchesPrivateMessagesAndReplies(t *testing.T) {
	fake := &fakeBotAPI{sent: make(chan sendMessageRequest, 4)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	h := &echoHandler{}
	rt, err := New(h, Options{Token: "T", BaseURL: srv.URL, PollTimeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case req := <-fake.sent:
		if req.ChatID != 55 || req.Text != "echo: hola" {
			t.Fatalf("sendMessage = %+v", req)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reply sent")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.got) != 1 {
		t.Fatalf("handled %d messages, want 1", len(h.got))
	}
	if h.got[0].UserID != 55 || h.got[0].DisplayName != "Juan Perez" {
		t.Fatalf("inbound = %+v", h.got[0])
	}
}

func TestSendTextReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	rt, err := New(&echoHandler{}, Options{Token: "T", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = rt.SendText(context.Background(), 1, "hello")
	reqErr, ok := err.(*RequestError)
	if !ok {
		t.Fatalf("SendText() error = %v, want *RequestError", err)
	}
	if reqErr.ErrorCode != 400 || !strings.Contains(reqErr.Error(), "chat not found") {
		t.Fatalf("RequestError = %+v", reqErr)
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(&echoHandler{}, Options{}); err == nil {
		t.Fatalf("New() expected error without token")
	}
}

func TestChunkText(t *testing.T) {
	if got := chunkText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("chunkText(short) = %q", got)
	}
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := chunkText(text, 10)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("chunkText() = %q", got)
	}
	got = chunkText(strings.Repeat("x", 25), 10)
	if len(got) != 3 || len(got[2]) != 5 {
		t.Fatalf("chunkText(no newline) = %q", got)
	}
}

// gatedHandler blocks turns for the gated chat until release is closed.
type gatedHandler struct {
	gated   int64
	started chan struct{}
	release chan struct{}
	handled chan int64
}

func (h *gatedHandler) Handle(ctx context.Context, in conversation.Inbound, _ conversation.ReplyFunc) error {
	if in.ChatID == h.gated {
		select {
		case h.started <- struct{}{}:
		default:
		}
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.handled <- in.ChatID
	return nil
}

func privateUpdate(chatID int64, text string) update {
	return update{Message: &message{
		Chat: &chat{ID: chatID, Type: "private"},
		From: &user{ID: chatID, FirstName: "u"},
		Text: text,
	}}
}

func TestBlockedChatDoesNotDelayOthers(t *testing.T) {
	h := &gatedHandler{
		gated:   1,
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		handled: make(chan int64, 64),
	}
	rt, err := New(h, Options{Token: "T", ChatQueue: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.dispatch(ctx, privateUpdate(1, "slow"))
	select {
	case <-h.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("first turn for chat 1 never started")
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for i := 0; i < 9; i++ {
			rt.dispatch(ctx, privateUpdate(1, "slow"))
		}
		rt.dispatch(ctx, privateUpdate(2, "menu"))
	}()
	select {
	case <-dispatched:
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatch blocked on a full chat backlog")
	}
	select {
	case got := <-h.handled:
		if got != 2 {
			t.Fatalf("handled chat %d first, want 2", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("chat 2 was not handled while chat 1 was blocked")
	}

	close(h.release)
	count := 0
	timeout := time.After(5 * time.Second)
	for count < 3 {
		select {
		case got := <-h.handled:
			if got != 1 {
				t.Fatalf("handled chat %d, want 1", got)
			}
			count++
		case <-timeout:
			t.Fatalf("handled %d turns for chat 1, want 3", count)
		}
	}
	select {
	case got := <-h.handled:
		t.Fatalf("extra turn for chat %d; overflow should be dropped", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIdleChatWorkerIsRetired(t *testing.T) {
	h := &gatedHandler{gated: -1, handled: make(chan int64, 4)}
	rt, err := New(h, Options{Token: "T", ChatIdleTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt.dispatch(ctx, privateUpdate(7, "hola"))
	select {
	case <-h.handled:
	case <-time.After(5 * time.Second):
		t.Fatalf("message not handled")
	}
	deadline := time.Now().Add(5 * time.Second)
	for rt.activeChats() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("activeChats() = %d after idle timeout, want 0", rt.activeChats())
		}
		time.Sleep(5 * time.Millisecond)
	}

	rt.dispatch(ctx, privateUpdate(7, "again"))
	select {
	case <-h.handled:
	case <-time.After(5 * time.Second):
		t.Fatalf("message after retirement not handled")
	}
}
