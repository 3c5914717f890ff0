package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const liveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Live audio wire format: 16 kHz mono s16le in, 24 kHz mono s16le out.
const (
	LiveInputMIMEType    = "audio/pcm;rate=16000"
	LiveInputSampleRate  = 16000
	LiveOutputSampleRate = 24000
)

// LiveEventType tags events produced by a live session's receive loop.
type LiveEventType int

const (
	// LiveAudio carries a base64 PCM chunk of synthesized speech.
	LiveAudio LiveEventType = iota
	// LiveInputTranscript carries a partial transcript fragment of the
	// user's speech.
	LiveInputTranscript
	// LiveOutputTranscript carries a partial transcript fragment of the
	// model's speech.
	LiveOutputTranscript
	// LiveTurnComplete marks a turn boundary; accumulated partial
	// transcript text may now be flushed to permanent history.
	LiveTurnComplete
	// LiveClosed signals the session ended; Err carries the cause, nil on
	// a clean shutdown.
	LiveClosed
)

// LiveEvent is one message from the bidirectional session.
type LiveEvent struct {
	Type LiveEventType
	Data string
	Err  error
}

// LiveSession is a bidirectional low-latency audio session with the
// provider. The session owns its websocket connection for its lifetime;
// Close is safe to call from any goroutine and on every exit path.
type LiveSession struct {
	conn   *websocket.Conn
	events chan LiveEvent

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// DialLive opens a live session with a system instruction derived from the
// channel persona and the persona's narrator voice.
func DialLive(ctx context.Context, apiKey, systemInstruction, voiceID string) (*LiveSession, error) {
	url := fmt.Sprintf("%s?key=%s", liveEndpoint, apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live session: %w", err)
	}
	s := &LiveSession{
		conn:   conn,
		events: make(chan LiveEvent, 32),
	}
	setup := liveClientMessage{
		Setup: &liveSetup{
			Model: "models/" + LiveModel,
			GenerationConfig: &generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voiceID},
					},
				},
			},
			SystemInstruction:        &content{Parts: []part{{Text: systemInstruction}}},
			InputAudioTranscription:  &struct{}{},
			OutputAudioTranscription: &struct{}{},
		},
	}
	if err := s.writeJSON(setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send live setup: %w", err)
	}
	go s.readLoop()
	return s, nil
}

// SendAudio transmits one base64-framed block of 16 kHz mono s16le PCM.
func (s *LiveSession) SendAudio(base64PCM string) error {
	return s.writeJSON(liveClientMessage{
		RealtimeInput: &liveRealtimeInput{
			Audio: &inlineData{MIMEType: LiveInputMIMEType, Data: base64PCM},
		},
	})
}

// Events returns the stream of session events. The channel is closed after a
// LiveClosed event is delivered.
func (s *LiveSession) Events() <-chan LiveEvent {
	return s.events
}

// Close shuts the session down explicitly: a close frame is sent to the
// provider, then the transport is torn down. Idempotent.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		deadline := time.Now().Add(2 * time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *LiveSession) writeJSON(msg liveClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *LiveSession) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			s.events <- LiveEvent{Type: LiveClosed, Err: err}
			return
		}
		var msg liveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("live session: unparseable server message", "err", err)
			continue
		}
		if msg.SetupComplete != nil {
			continue
		}
		sc := msg.ServerContent
		if sc == nil {
			continue
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.events <- LiveEvent{Type: LiveInputTranscript, Data: sc.InputTranscription.Text}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.events <- LiveEvent{Type: LiveOutputTranscript, Data: sc.OutputTranscription.Text}
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					s.events <- LiveEvent{Type: LiveAudio, Data: p.InlineData.Data}
				}
			}
		}
		if sc.TurnComplete {
			s.events <- LiveEvent{Type: LiveTurnComplete}
		}
	}
}

type liveClientMessage struct {
	Setup         *liveSetup         `json:"setup,omitempty"`
	RealtimeInput *liveRealtimeInput `json:"realtimeInput,omitempty"`
}

type liveSetup struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *content          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type liveRealtimeInput struct {
	Audio *inlineData `json:"audio,omitempty"`
}

type liveServerMessage struct {
	SetupComplete *struct{}          `json:"setupComplete,omitempty"`
	ServerContent *liveServerContent `json:"serverContent,omitempty"`
}

type liveServerContent struct {
	ModelTurn           *content           `json:"modelTurn,omitempty"`
	InputTranscription  *liveTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *liveTranscription `json:"outputTranscription,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
}

type liveTranscription struct {
	Text string `json:"text"`
}
