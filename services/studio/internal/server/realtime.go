package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tubestudio/pkg/ai"
	"tubestudio/pkg/audio"
	"tubestudio/pkg/channel"
	"tubestudio/pkg/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	// Cross-origin policy is enforced by the CORS middleware; the upgrade
	// itself accepts any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// writeWait bounds every client write. A peer that stops reading makes the
// write fail instead of wedging the relay with writeMu held.
const writeWait = 10 * time.Second

// liveSession is the upstream surface the relay needs. Satisfied by
// *ai.LiveSession.
type liveSession interface {
	Events() <-chan ai.LiveEvent
	SendAudio(base64PCM string) error
	Close() error
}

// Client frames.
type clientFrame struct {
	Type string `json:"type"` // audio | mute | unmute | close
	Data string `json:"data,omitempty"`
}

// Server frames.
type serverFrame struct {
	Type     string  `json:"type"` // audio | level | turn | error | closed
	Data     string  `json:"data,omitempty"`
	Start    float64 `json:"start,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Level    float64 `json:"level,omitempty"`
	Role     string  `json:"role,omitempty"`
	Text     string  `json:"text,omitempty"`
	At       string  `json:"at,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// handleRealtime upgrades the connection and relays a voice brainstorm
// session between the client and the provider's live endpoint.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request, userID string) {
	ch, err := channel.Lookup(r.URL.Query().Get("channel"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}
	if s.liveAPIKey == "" {
		writeError(w, http.StatusServiceUnavailable, "realtime sessions not configured")
		return
	}

	session, err := ai.DialLive(r.Context(), s.liveAPIKey, brainstormInstruction(ch), ch.VoiceID)
	if err != nil {
		slog.Error("realtime: dial live session", "user", userID, "err", err)
		writeError(w, http.StatusBadGateway, "live session unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = session.Close()
		return
	}

	relay := &realtimeRelay{
		conn:      conn,
		session:   session,
		scheduler: audio.NewScheduler(),
		epoch:     time.Now(),
	}
	relay.gate = audio.NewCaptureGate(session.SendAudio)

	slog.Info("realtime: session started", "user", userID, "channel", ch.ID)
	go relay.pumpUpstream()
	relay.pumpClient()
	relay.teardown()
	slog.Info("realtime: session ended", "user", userID, "channel", ch.ID)
}

func brainstormInstruction(ch domain.ChannelConfig) string {
	return "You are a creative brainstorming partner for the YouTube channel \"" + ch.Name +
		"\". You speak as " + ch.Persona + ". Tone: " + ch.Tone +
		". Keep replies short and conversational; you are riffing on video ideas out loud, not lecturing."
}

// realtimeRelay owns one client socket, one live session and one playback
// schedule for the session's lifetime.
type realtimeRelay struct {
	conn      *websocket.Conn
	session   liveSession
	scheduler *audio.Scheduler
	gate      *audio.CaptureGate
	epoch     time.Time

	writeMu sync.Mutex
	once    sync.Once
}

// pumpClient reads client frames until the socket drops or the client asks
// to close.
func (rl *realtimeRelay) pumpClient() {
	for {
		var frame clientFrame
		if err := rl.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "audio":
			samples, err := audio.DecodeBase64PCM(frame.Data)
			if err != nil {
				rl.send(serverFrame{Type: "error", Error: "bad audio frame"})
				continue
			}
			level, _, err := rl.gate.Process(samples)
			if err != nil {
				rl.send(serverFrame{Type: "error", Error: "upstream send failed"})
				return
			}
			if !rl.send(serverFrame{Type: "level", Level: level}) {
				return
			}
		case "mute":
			rl.gate.SetMuted(true)
		case "unmute":
			rl.gate.SetMuted(false)
		case "close":
			return
		}
	}
}

// pumpUpstream forwards provider events to the client. Audio chunks get a
// gapless start offset; transcript fragments accumulate and flush only on
// turn boundaries.
func (rl *realtimeRelay) pumpUpstream() {
	var userLine, modelLine string
	for event := range rl.session.Events() {
		switch event.Type {
		case ai.LiveAudio:
			raw, err := base64.StdEncoding.DecodeString(event.Data)
			if err != nil {
				continue
			}
			duration := audio.Duration(len(raw), ai.LiveOutputSampleRate)
			id, start := rl.scheduler.Schedule(duration)
			endsAt := rl.epoch.Add(time.Duration((start + duration) * float64(time.Second)))
			time.AfterFunc(time.Until(endsAt), func() { rl.scheduler.Complete(id) })
			if !rl.send(serverFrame{Type: "audio", Data: event.Data, Start: start, Duration: duration}) {
				rl.teardown()
				return
			}
		case ai.LiveInputTranscript:
			userLine += event.Data
		case ai.LiveOutputTranscript:
			modelLine += event.Data
		case ai.LiveTurnComplete:
			now := time.Now().UTC().Format(time.RFC3339)
			if userLine != "" {
				if !rl.send(serverFrame{Type: "turn", Role: "user", Text: userLine, At: now}) {
					rl.teardown()
					return
				}
				userLine = ""
			}
			if modelLine != "" {
				if !rl.send(serverFrame{Type: "turn", Role: "model", Text: modelLine, At: now}) {
					rl.teardown()
					return
				}
				modelLine = ""
			}
		case ai.LiveClosed:
			if event.Err != nil {
				rl.send(serverFrame{Type: "error", Error: "live session closed unexpectedly"})
			}
			rl.teardown()
			return
		}
	}
}

// send writes one frame under a deadline. Returns false when the write
// failed, which means the client is gone or stalled and the caller should
// stop pumping.
func (rl *realtimeRelay) send(frame serverFrame) bool {
	rl.writeMu.Lock()
	defer rl.writeMu.Unlock()
	_ = rl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return rl.conn.WriteJSON(frame) == nil
}

// teardown runs exactly once on every exit path: stop scheduled playback,
// close the upstream session with an explicit close frame, close the client
// socket.
func (rl *realtimeRelay) teardown() {
	rl.once.Do(func() {
		stopped := rl.scheduler.StopAll()
		if stopped > 0 {
			slog.Debug("realtime: stopped scheduled sources", "count", stopped)
		}
		_ = rl.session.Close()
		rl.writeMu.Lock()
		_ = rl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = rl.conn.WriteJSON(serverFrame{Type: "closed"})
		deadline := time.Now().Add(time.Second)
		_ = rl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		rl.writeMu.Unlock()
		_ = rl.conn.Close()
	})
}
