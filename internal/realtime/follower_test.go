package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/echotrace/backend/internal/fingerprint"
)

type fakeSubscriber struct {
	mu        sync.Mutex
	sessionID string
	handler   func(MatchEvent)
	cancelled bool
}

func (f *fakeSubscriber) SubscribeSession(sessionID string, handler func(MatchEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionID = sessionID
	f.handler = handler
	return func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeSubscriber) emit(event MatchEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(event)
	}
}

func (f *fakeSubscriber) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeSubscriber) subscribedTo() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func TestFollowRelaysPublishedEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sub := &fakeSubscriber{}
	router := gin.New()
	router.GET("/ws/follow/:session_id", ServeFollow(sub, zap.NewNop()))
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/follow/abc"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered before the status greeting, so once
	// that frame arrives the relay path is live.
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if msg.Event != "status" {
		t.Fatalf("first event = %q, want status", msg.Event)
	}
	if got := sub.subscribedTo(); got != "abc" {
		t.Fatalf("subscribed to %q, want %q", got, "abc")
	}

	sent := MatchEvent{
		SessionID: "abc",
		Matches:   []Match{{VideoExternalID: "v1", VideoTitle: "t", Similarity: fingerprint.Similarity{Combined: 0.9}}},
		Timestamp: time.Now().UTC(),
	}
	sub.emit(sent)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read match: %v", err)
	}
	if msg.Event != "match" {
		t.Fatalf("event = %q, want match", msg.Event)
	}
	var got MatchEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("unmarshal match: %v", err)
	}
	if got.SessionID != "abc" || len(got.Matches) != 1 || got.Matches[0].VideoExternalID != "v1" {
		t.Fatalf("relayed event = %+v", got)
	}
}

func TestFollowDisconnectCancelsSubscription(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sub := &fakeSubscriber{}
	router := gin.New()
	router.GET("/ws/follow/:session_id", ServeFollow(sub, zap.NewNop()))
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/follow/gone"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read status: %v", err)
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !sub.wasCancelled() {
		if time.Now().After(deadline) {
			t.Fatal("subscription not cancelled after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Events emitted after teardown must be dropped, not panic.
	sub.emit(MatchEvent{SessionID: "gone"})
}
