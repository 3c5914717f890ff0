package export

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"tubestudio/pkg/domain"
)

// SpeechFunc synthesizes narration audio and returns base64 PCM.
type SpeechFunc func(ctx context.Context, text, voiceID string) (string, error)

// FillSceneAudio synthesizes narration for every scene that has text but no
// cached clip, with at most maxParallel calls in flight. Scenes with cached
// audio or blank narration are left untouched. The returned package is a new
// value; the input is never mutated.
func FillSceneAudio(ctx context.Context, pkg domain.GeneratedPackage, synth SpeechFunc, voiceID string, maxParallel int) (domain.GeneratedPackage, error) {
	if maxParallel <= 0 {
		maxParallel = 3
	}
	script := make([]domain.ScriptScene, len(pkg.Script))
	copy(script, pkg.Script)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	var mu sync.Mutex
	for i := range script {
		if script[i].AudioData != "" || script[i].Narration == "" {
			continue
		}
		idx := i
		text := script[i].Narration
		g.Go(func() error {
			clip, err := synth(ctx, text, voiceID)
			if err != nil {
				return err
			}
			mu.Lock()
			script[idx].AudioData = clip
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.GeneratedPackage{}, err
	}
	pkg.Script = script
	return pkg, nil
}
