package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tubestudio/pkg/domain"
)

// Fixed keyword suffix appended to every thumbnail prompt.
const thumbnailQualitySuffix = ", YouTube thumbnail, bold composition, high contrast, ultra detailed, 4k, vibrant colors"

// StudioGenerator builds production packages and per-scene assets with a
// GeminiClient. It is stateless: one request/response exchange per call,
// no retries, no caching.
type StudioGenerator struct {
	client *GeminiClient
}

// NewStudioGenerator wraps a client for studio generation calls.
func NewStudioGenerator(client *GeminiClient) *StudioGenerator {
	return &StudioGenerator{client: client}
}

// GeneratePackage asks for a schema-constrained JSON production package and
// parses it. On success the result is stamped with the originating channel
// id; id and creation timestamp are left to the persistence layer.
func (g *StudioGenerator) GeneratePackage(ctx context.Context, req domain.GenerationRequest, channel domain.ChannelConfig) (domain.GeneratedPackage, error) {
	raw, err := g.client.GenerateJSON(ctx, TextModel, systemPrompt(channel), userPrompt(req), packageSchema())
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	var pkg domain.GeneratedPackage
	if err := json.Unmarshal([]byte(raw), &pkg); err != nil {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(pkg.Script) == 0 {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: script is empty", ErrParse)
	}
	pkg.ID = ""
	pkg.ChannelID = channel.ID
	return pkg, nil
}

// GenerateThumbnail renders one thumbnail variant. Fixed quality and style
// keywords are appended to the prompt.
func (g *StudioGenerator) GenerateThumbnail(ctx context.Context, prompt, aspectRatio string) (string, error) {
	return g.client.GenerateImage(ctx, prompt+thumbnailQualitySuffix, aspectRatio)
}

// GenerateSceneImage renders a scene visual, folding the package's general
// aesthetic prompt into the scene direction.
func (g *StudioGenerator) GenerateSceneImage(ctx context.Context, direction, aesthetic, aspectRatio string) (string, error) {
	prompt := direction
	if strings.TrimSpace(aesthetic) != "" {
		prompt = fmt.Sprintf("%s. Visual style: %s", direction, aesthetic)
	}
	return g.client.GenerateImage(ctx, prompt, aspectRatio)
}

// GenerateSpeech synthesizes narration audio with the channel's voice.
func (g *StudioGenerator) GenerateSpeech(ctx context.Context, text, voiceID string) (string, error) {
	return g.client.GenerateSpeech(ctx, text, voiceID)
}

func systemPrompt(channel domain.ChannelConfig) string {
	return fmt.Sprintf(
		"You are the lead content producer for the YouTube channel %q. You write as %s. Tone: %s. Audience: %s. Always answer with a single JSON object matching the requested schema, nothing else.",
		channel.Name, channel.Persona, channel.Tone, channel.Audience,
	)
}

func userPrompt(req domain.GenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce a complete video package for the topic %q.\n", req.Topic)
	fmt.Fprintf(&b, "Mood: %s. Target length: %s.\n", req.Mood, req.Duration)
	b.WriteString("Include a title, a one-line hook, a full description, exactly 15 SEO tags, ")
	b.WriteString("a scene-by-scene script with timestamp ranges and visual directions, ")
	b.WriteString("exactly 3 thumbnail concept prompts, a music prompt, a general visual aesthetic prompt, and a branding note.")
	return b.String()
}

// packageSchema is the response schema constraining package generation.
func packageSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"hook":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"tags": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 15,
				"maxItems": 15,
			},
			"script": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"timestamp":       map[string]any{"type": "string"},
						"visualDirection": map[string]any{"type": "string"},
						"narration":       map[string]any{"type": "string"},
					},
					"required": []string{"timestamp", "visualDirection", "narration"},
				},
				"minItems": 1,
			},
			"thumbnailIdeas": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 3,
				"maxItems": 3,
			},
			"musicPrompt":     map[string]any{"type": "string"},
			"aestheticPrompt": map[string]any{"type": "string"},
			"brandingNote":    map[string]any{"type": "string"},
		},
		"required": []string{
			"title", "hook", "description", "tags", "script",
			"thumbnailIdeas", "musicPrompt", "aestheticPrompt", "brandingNote",
		},
	}
}
