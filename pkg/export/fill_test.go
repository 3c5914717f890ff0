package export

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tubestudio/pkg/domain"
)

func TestFillSceneAudioSkipsCachedAndBlank(t *testing.T) {
	pkg := domain.GeneratedPackage{
		Script: []domain.ScriptScene{
			{Narration: "one"},
			{Narration: "two", AudioData: "cached="},
			{Narration: ""},
			{Narration: "four"},
		},
	}

	var mu sync.Mutex
	synthesized := make(map[string]bool)
	synth := func(_ context.Context, text, voiceID string) (string, error) {
		mu.Lock()
		synthesized[text] = true
		mu.Unlock()
		if voiceID != "Orus" {
			t.Errorf("expected voice Orus, got %q", voiceID)
		}
		return "clip-" + text, nil
	}

	filled, err := FillSceneAudio(context.Background(), pkg, synth, "Orus", 2)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if filled.Script[0].AudioData != "clip-one" || filled.Script[3].AudioData != "clip-four" {
		t.Fatalf("expected missing clips synthesized, got %+v", filled.Script)
	}
	if filled.Script[1].AudioData != "cached=" {
		t.Fatalf("cached clip must survive, got %q", filled.Script[1].AudioData)
	}
	if filled.Script[2].AudioData != "" {
		t.Fatalf("blank narration must stay silent")
	}
	if synthesized["two"] || synthesized[""] {
		t.Fatalf("cached/blank scenes must not be synthesized: %v", synthesized)
	}
	// Input is never mutated.
	if pkg.Script[0].AudioData != "" {
		t.Fatalf("input package must not be mutated")
	}
}

func TestFillSceneAudioPropagatesError(t *testing.T) {
	pkg := domain.GeneratedPackage{Script: []domain.ScriptScene{{Narration: "one"}}}
	boom := errors.New("synth down")
	_, err := FillSceneAudio(context.Background(), pkg, func(context.Context, string, string) (string, error) {
		return "", boom
	}, "Orus", 0)
	if !errors.Is(err, boom) {
		t.Fatalf("expected synth error, got %v", err)
	}
}
