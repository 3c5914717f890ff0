// Package channel holds the static registry of channel personas applied to
// generation prompts.
package channel

import (
	"fmt"
	"sort"

	"tubestudio/pkg/domain"
)

var registry = map[string]domain.ChannelConfig{
	"tech": {
		ID:       "tech",
		Name:     "Tech & Automation",
		Icon:     "cpu",
		Persona:  "a sharp, forward-looking technology analyst",
		Tone:     "fast-paced, confident, precise about technical claims",
		Audience: "developers and early adopters who want signal over hype",
		VoiceID:  "Orus",
	},
	"finance": {
		ID:       "finance",
		Name:     "Money Matters",
		Icon:     "trending-up",
		Persona:  "a grounded personal-finance educator",
		Tone:     "calm, trustworthy, no get-rich-quick framing",
		Audience: "young professionals building long-term wealth",
		VoiceID:  "Charon",
	},
	"history": {
		ID:       "history",
		Name:     "Hidden Histories",
		Icon:     "scroll",
		Persona:  "a vivid storyteller of overlooked historical moments",
		Tone:     "dramatic, narrative-driven, rich in concrete detail",
		Audience: "curious viewers who love documentary storytelling",
		VoiceID:  "Enceladus",
	},
	"wellness": {
		ID:       "wellness",
		Name:     "Calm Corner",
		Icon:     "leaf",
		Persona:  "a warm, evidence-aware wellbeing coach",
		Tone:     "gentle, encouraging, free of medical overreach",
		Audience: "busy people looking for practical calm",
		VoiceID:  "Aoede",
	},
	"gaming": {
		ID:       "gaming",
		Name:     "Pixel Pulse",
		Icon:     "gamepad",
		Persona:  "an enthusiastic gaming commentator",
		Tone:     "high energy, playful, opinionated but fair",
		Audience: "core gamers following releases and esports",
		VoiceID:  "Puck",
	},
}

// Lookup returns the persona for id. Unknown ids are an error; there is no
// fallback persona.
func Lookup(id string) (domain.ChannelConfig, error) {
	cfg, ok := registry[id]
	if !ok {
		return domain.ChannelConfig{}, fmt.Errorf("unknown channel %q", id)
	}
	return cfg, nil
}

// List returns every channel ordered by id.
func List() []domain.ChannelConfig {
	out := make([]domain.ChannelConfig, 0, len(registry))
	for _, cfg := range registry {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
