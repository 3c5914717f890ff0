package server

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tubestudio/pkg/ai"
	"tubestudio/pkg/audio"
)

// fakeLiveSession stands in for the provider's live endpoint. Events are fed
// by the test; Close unblocks any feeder still waiting.
type fakeLiveSession struct {
	events chan ai.LiveEvent
	quit   chan struct{}
	once   sync.Once
}

func newFakeLiveSession() *fakeLiveSession {
	return &fakeLiveSession{
		events: make(chan ai.LiveEvent, 16),
		quit:   make(chan struct{}),
	}
}

func (f *fakeLiveSession) Events() <-chan ai.LiveEvent { return f.events }

func (f *fakeLiveSession) SendAudio(string) error { return nil }

func (f *fakeLiveSession) Close() error {
	f.once.Do(func() {
		close(f.quit)
		select {
		case f.events <- ai.LiveEvent{Type: ai.LiveClosed}:
		default:
		}
	})
	return nil
}

// feed delivers one event unless the session has been closed.
func (f *fakeLiveSession) feed(ev ai.LiveEvent) bool {
	select {
	case <-f.quit:
		return false
	default:
	}
	select {
	case <-f.quit:
		return false
	case f.events <- ev:
		return true
	}
}

func (f *fakeLiveSession) closed() bool {
	select {
	case <-f.quit:
		return true
	default:
		return false
	}
}

func dialRelay(t *testing.T, handler http.HandlerFunc) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	return ws
}

func TestRelayFlushesTranscriptOnlyOnTurnBoundary(t *testing.T) {
	session := newFakeLiveSession()
	marker := base64.StdEncoding.EncodeToString(make([]byte, 4800))

	done := make(chan struct{})
	ws := dialRelay(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		relay := &realtimeRelay{
			conn:      conn,
			session:   session,
			scheduler: audio.NewScheduler(),
			epoch:     time.Now(),
		}
		relay.gate = audio.NewCaptureGate(session.SendAudio)
		go relay.pumpUpstream()
		relay.pumpClient()
		relay.teardown()
		close(done)
	})
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Fragments arrive mid-turn, then an audio chunk. The audio frame must
	// reach the client before any turn frame.
	session.feed(ai.LiveEvent{Type: ai.LiveInputTranscript, Data: "what about "})
	session.feed(ai.LiveEvent{Type: ai.LiveInputTranscript, Data: "edge ai"})
	session.feed(ai.LiveEvent{Type: ai.LiveOutputTranscript, Data: "great angle"})
	session.feed(ai.LiveEvent{Type: ai.LiveAudio, Data: marker})

	var frame serverFrame
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "audio" {
		t.Fatalf("expected the audio frame before any turn frame, got %q", frame.Type)
	}

	session.feed(ai.LiveEvent{Type: ai.LiveTurnComplete})
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "turn" || frame.Role != "user" || frame.Text != "what about edge ai" {
		t.Fatalf("unexpected first turn frame: %+v", frame)
	}
	if frame.At == "" {
		t.Fatal("turn frame missing timestamp")
	}
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "turn" || frame.Role != "model" || frame.Text != "great angle" {
		t.Fatalf("unexpected second turn frame: %+v", frame)
	}

	// A boundary with nothing accumulated emits no frame, so the next thing
	// the client sees after asking to close is the closed frame.
	session.feed(ai.LiveEvent{Type: ai.LiveTurnComplete})
	if err := ws.WriteJSON(clientFrame{Type: "close"}); err != nil {
		t.Fatalf("write close: %v", err)
	}
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "closed" {
		t.Fatalf("expected closed frame, got %q", frame.Type)
	}

	<-done
	if !session.closed() {
		t.Fatal("upstream session left open after teardown")
	}
}

func TestRelayTearsDownWhenClientStopsReading(t *testing.T) {
	session := newFakeLiveSession()
	chunk := base64.StdEncoding.EncodeToString(make([]byte, 4800))

	upstreamDone := make(chan struct{})
	ws := dialRelay(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		relay := &realtimeRelay{
			conn:      conn,
			session:   session,
			scheduler: audio.NewScheduler(),
			epoch:     time.Now(),
		}
		relay.pumpUpstream()
		close(upstreamDone)
	})

	// Drop the client. The next write that fails must tear the relay down
	// rather than leave the upstream pump running forever.
	ws.Close()

	deadline := time.Now().Add(5 * time.Second)
	for session.feed(ai.LiveEvent{Type: ai.LiveAudio, Data: chunk}) {
		if time.Now().After(deadline) {
			t.Fatal("relay kept accepting events after the client went away")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-upstreamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream pump did not stop after the failed write")
	}
	if !session.closed() {
		t.Fatal("upstream session left open after teardown")
	}
}
