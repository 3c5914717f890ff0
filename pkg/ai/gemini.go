package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Default models per modality.
const (
	TextModel   = "gemini-2.5-flash"
	ImageModel  = "gemini-2.5-flash-image"
	SpeechModel = "gemini-2.5-flash-preview-tts"
	VideoModel  = "veo-3.0-generate-001"
	LiveModel   = "gemini-2.5-flash-native-audio-preview"
)

// GeminiClient calls the Google AI Studio (Gemini) API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a client with the provided API key.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// WithCredential returns a client identical to c but authenticating with a
// different API key. Used for the paid-tier video credential.
func (c *GeminiClient) WithCredential(apiKey string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
	}, nil
}

// GenerateText returns the generated response for a prompt.
func (c *GeminiClient) GenerateText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: userPrompt}},
			},
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &content{
			Parts: []part{{Text: systemPrompt}},
		}
	}
	var resp generateResponse
	if err := c.doJSON(ctx, c.generateURL(model), reqBody, &resp); err != nil {
		return "", err
	}
	text := resp.firstText()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GenerateJSON asks for a schema-constrained JSON response and returns the
// raw candidate text with any markdown code fencing stripped.
func (c *GeminiClient) GenerateJSON(ctx context.Context, model, systemPrompt, userPrompt string, schema map[string]any) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: userPrompt}},
			},
		},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &content{
			Parts: []part{{Text: systemPrompt}},
		}
	}
	var resp generateResponse
	if err := c.doJSON(ctx, c.generateURL(model), reqBody, &resp); err != nil {
		return "", err
	}
	text := resp.firstText()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return StripFences(text), nil
}

// GenerateImage requests one image at the given aspect ratio and returns the
// first inline image payload as a data URI.
func (c *GeminiClient) GenerateImage(ctx context.Context, prompt, aspectRatio string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: prompt}},
			},
		},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        &imageConfig{AspectRatio: aspectRatio},
		},
	}
	var resp generateResponse
	if err := c.doJSON(ctx, c.generateURL(ImageModel), reqBody, &resp); err != nil {
		return "", err
	}
	for _, p := range resp.parts() {
		if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "image/") {
			return fmt.Sprintf("data:%s;base64,%s", p.InlineData.MIMEType, p.InlineData.Data), nil
		}
	}
	return "", ErrNoImage
}

// GenerateSpeech synthesizes narration with the given prebuilt voice and
// returns base64-encoded raw PCM (24 kHz mono 16-bit). Blank input is
// rejected before any network round trip.
func (c *GeminiClient) GenerateSpeech(ctx context.Context, text, voiceID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: text}},
			},
		},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voiceID},
				},
			},
		},
	}
	var resp generateResponse
	if err := c.doJSON(ctx, c.generateURL(SpeechModel), reqBody, &resp); err != nil {
		return "", err
	}
	for _, p := range resp.parts() {
		if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
			return p.InlineData.Data, nil
		}
	}
	return "", ErrNoAudio
}

// StartVideo begins a long-running video generation and returns the
// operation name. Polling and progress reporting are the caller's job.
func (c *GeminiClient) StartVideo(ctx context.Context, prompt, aspectRatio, imageContext string) (string, error) {
	instance := videoInstance{Prompt: prompt}
	if imageContext != "" {
		if mimeType, data, ok := splitDataURI(imageContext); ok {
			instance.Image = &inlineData{MIMEType: mimeType, Data: data}
		}
	}
	reqBody := videoRequest{
		Instances:  []videoInstance{instance},
		Parameters: videoParameters{AspectRatio: aspectRatio},
	}
	url := fmt.Sprintf("%s/models/%s:predictLongRunning?key=%s", c.baseURL, VideoModel, c.apiKey)
	var resp videoOperation
	if err := c.doJSON(ctx, url, reqBody, &resp); err != nil {
		return "", classifyVideoError(err)
	}
	if resp.Name == "" {
		return "", ErrEmptyResponse
	}
	return resp.Name, nil
}

// PollVideo fetches the state of a video operation. It returns the video URL
// and done=true once the operation completes.
func (c *GeminiClient) PollVideo(ctx context.Context, operation string) (url string, done bool, err error) {
	reqURL := fmt.Sprintf("%s/%s?key=%s", c.baseURL, operation, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", false, classifyVideoError(decodeAPIError(resp))
	}
	var op videoOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return "", false, err
	}
	if op.Error != nil && op.Error.Message != "" {
		return "", true, classifyVideoError(fmt.Errorf("video generation failed: %s", op.Error.Message))
	}
	if !op.Done {
		return "", false, nil
	}
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.URI == "" {
		return "", true, ErrEmptyResponse
	}
	return samples[0].Video.URI, true, nil
}

// classifyVideoError maps the backend's "not found" condition to the
// credential sentinel. The substring match is brittle but the provider
// exposes no structured code; anything else stays a generic failure.
func classifyVideoError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return fmt.Errorf("%w: %v", ErrCredentialNotFound, err)
	}
	return err
}

// StripFences removes a leading/trailing markdown code fence from raw model
// output so the remainder can be parsed as JSON.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func (c *GeminiClient) generateURL(model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

func (c *GeminiClient) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var errResp errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Error.Message != "" {
		return fmt.Errorf("gemini api error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("gemini api error: %s", resp.Status)
}

func splitDataURI(uri string) (mimeType, data string, ok bool) {
	if !strings.HasPrefix(uri, "data:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(uri, "data:")
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return "", "", false
	}
	return rest[:sep], rest[sep+len(";base64,"):], true
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType   string         `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any `json:"responseSchema,omitempty"`
	ResponseModalities []string       `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig  `json:"speechConfig,omitempty"`
	ImageConfig        *imageConfig   `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) parts() []part {
	if len(r.Candidates) == 0 {
		return nil
	}
	return r.Candidates[0].Content.Parts
}

func (r generateResponse) firstText() string {
	for _, p := range r.parts() {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *inlineData `json:"image,omitempty"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type videoRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type videoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
