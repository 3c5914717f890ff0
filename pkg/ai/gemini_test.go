package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewGeminiClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.baseURL = srv.URL
	return client
}

func textResponse(texts ...string) map[string]any {
	parts := make([]map[string]any, 0, len(texts))
	for _, txt := range texts {
		parts = append(parts, map[string]any{"text": txt})
	}
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": parts}},
		},
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := StripFences(tc.in); got != tc.want {
			t.Fatalf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateSpeechRejectsBlankInputBeforeNetwork(t *testing.T) {
	client := testClient(t, func(http.ResponseWriter, *http.Request) {
		t.Errorf("blank input must not reach the network")
	})
	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := client.GenerateSpeech(context.Background(), input, "Orus"); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("expected ErrEmptyInput for %q, got %v", input, err)
		}
	}
}

func TestGenerateSpeechReturnsInlineAudio(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{
					{"inlineData": map[string]string{"mimeType": "audio/L16;rate=24000", "data": "UENN"}},
				}},
			}},
		})
	})
	got, err := client.GenerateSpeech(context.Background(), "hello there", "Orus")
	if err != nil {
		t.Fatalf("generate speech: %v", err)
	}
	if got != "UENN" {
		t.Fatalf("unexpected audio payload: %q", got)
	}
}

func TestGenerateSpeechNoAudioPart(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("no audio here"))
	})
	if _, err := client.GenerateSpeech(context.Background(), "hello", "Orus"); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
}

func TestGenerateImageReturnsDataURI(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{
					{"text": "here you go"},
					{"inlineData": map[string]string{"mimeType": "image/png", "data": "aW1n"}},
				}},
			}},
		})
	})
	got, err := client.GenerateImage(context.Background(), "a robot", "16:9")
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if got != "data:image/png;base64,aW1n" {
		t.Fatalf("unexpected data uri: %q", got)
	}
}

func TestGenerateImageNoInlinePart(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("sorry, text only"))
	})
	if _, err := client.GenerateImage(context.Background(), "a robot", "16:9"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestGenerateJSONStripsFences(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMIMEType != "application/json" {
			t.Errorf("expected json response mime type, got %+v", req.GenerationConfig)
		}
		_ = json.NewEncoder(w).Encode(textResponse("```json\n{\"title\":\"x\"}\n```"))
	})
	got, err := client.GenerateJSON(context.Background(), TextModel, "sys", "user", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("generate json: %v", err)
	}
	if got != `{"title":"x"}` {
		t.Fatalf("expected fences stripped, got %q", got)
	}
}

func TestGenerateJSONEmptyResponse(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})
	if _, err := client.GenerateJSON(context.Background(), TextModel, "", "user", nil); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestClassifyVideoError(t *testing.T) {
	if err := classifyVideoError(errors.New("requested entity was Not Found")); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected credential sentinel, got %v", err)
	}
	plain := errors.New("quota exceeded")
	if err := classifyVideoError(plain); errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("generic errors must stay generic")
	}
	if classifyVideoError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestStartVideoMapsNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "model not found"}})
	})
	if _, err := client.StartVideo(context.Background(), "prompt", "16:9", ""); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}
