package domain

import "time"

// Mood labels accepted by generation requests.
const (
	MoodHighEnergy  = "High Energy"
	MoodChill       = "Chill & Laid-back"
	MoodEducational = "Educational & Clear"
	MoodDramatic    = "Dramatic & Cinematic"
)

// ValidMood reports whether mood is one of the accepted labels. Mood text
// flows into the generation prompt, so only the enumerated labels pass.
func ValidMood(mood string) bool {
	switch mood {
	case MoodHighEnergy, MoodChill, MoodEducational, MoodDramatic:
		return true
	}
	return false
}

// DurationBucket is one of three enumerated target lengths for a video.
type DurationBucket string

const (
	DurationShort  DurationBucket = "Short (1-3m)"
	DurationMedium DurationBucket = "Medium (5-8m)"
	DurationLong   DurationBucket = "Long (10-15m)"
)

// Valid reports whether d is one of the enumerated buckets.
func (d DurationBucket) Valid() bool {
	switch d {
	case DurationShort, DurationMedium, DurationLong:
		return true
	}
	return false
}

// ChannelConfig describes a channel persona. Defined at startup, never mutated.
type ChannelConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Persona  string `json:"persona"`
	Tone     string `json:"tone"`
	Audience string `json:"audience"`
	VoiceID  string `json:"voiceId"`
}

// GenerationRequest carries the user's inputs for one package generation.
// Constructed fresh per call, not persisted.
type GenerationRequest struct {
	Topic     string         `json:"topic"`
	ChannelID string         `json:"channelId"`
	Mood      string         `json:"mood"`
	Duration  DurationBucket `json:"duration"`
}

// ScriptScene is a single beat of the video. Scenes live only inside a
// package's ordered scene list; order is playback and export order.
type ScriptScene struct {
	Timestamp       string `json:"timestamp"`
	VisualDirection string `json:"visualDirection"`
	Narration       string `json:"narration"`
	ImageData       string `json:"imageData,omitempty"`
	AudioData       string `json:"audioData,omitempty"`
}

// GeneratedPackage is the aggregate production artifact for one topic.
// ID and CreatedAt are assigned by the store on insert; the client never
// chooses them.
type GeneratedPackage struct {
	ID              string         `json:"id"`
	ChannelID       string         `json:"channelId"`
	Title           string         `json:"title"`
	Hook            string         `json:"hook"`
	Description     string         `json:"description"`
	Tags            []string       `json:"tags"`
	Script          []ScriptScene  `json:"script"`
	ThumbnailIdeas  []string       `json:"thumbnailIdeas"`
	ThumbnailImages map[int]string `json:"thumbnailImages,omitempty"`
	MusicPrompt     string         `json:"musicPrompt"`
	AestheticPrompt string         `json:"aestheticPrompt"`
	BrandingNote    string         `json:"brandingNote"`
	VideoURL        string         `json:"videoUrl,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// TurnEntry is one completed transcript line of a realtime brainstorm
// session. Partial transcript text is never represented as a TurnEntry.
type TurnEntry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Preferences holds per-user studio settings. The paid API credential is
// stored encrypted and never returned in plaintext.
type Preferences struct {
	UserID              string         `json:"-"`
	DefaultMood         string         `json:"defaultMood"`
	DefaultDuration     DurationBucket `json:"defaultDuration"`
	EncryptedCredential []byte         `json:"-"`
	CredentialSet       bool           `json:"credentialSet"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}
