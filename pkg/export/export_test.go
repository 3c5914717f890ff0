package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"tubestudio/pkg/domain"
)

func archivePackage() domain.GeneratedPackage {
	pcm := base64.StdEncoding.EncodeToString(make([]byte, 48))
	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	return domain.GeneratedPackage{
		ID:    "pkg-1",
		Title: "Edge AI",
		Hook:  "Your phone got smarter.",
		Tags:  []string{"ai", "edge"},
		Script: []domain.ScriptScene{
			{Timestamp: "0:00-0:20", VisualDirection: "city", Narration: "one", ImageData: img, AudioData: pcm},
			{Timestamp: "0:20-0:40", VisualDirection: "lab", Narration: "two"},
		},
		ThumbnailIdeas:  []string{"a", "b", "c"},
		ThumbnailImages: map[int]string{0: img, 2: img},
		MusicPrompt:     "synth",
		AestheticPrompt: "noir",
		BrandingNote:    "logo",
	}
}

func TestFormatScriptLayout(t *testing.T) {
	text := FormatScript(archivePackage())
	for _, want := range []string{"Edge AI", "HOOK: Your phone got smarter.", "SCENE 1  [0:00-0:20]", "VISUAL: city", "NARRATION: one", "SCENE 2  [0:20-0:40]"} {
		if !strings.Contains(text, want) {
			t.Fatalf("script missing %q:\n%s", want, text)
		}
	}
}

func TestFormatMetadataJoinsTags(t *testing.T) {
	text := FormatMetadata(archivePackage())
	if !strings.Contains(text, "ai, edge") {
		t.Fatalf("metadata missing joined tags:\n%s", text)
	}
	if !strings.Contains(text, "MUSIC\nsynth") {
		t.Fatalf("metadata missing music section:\n%s", text)
	}
}

func TestBuildArchiveEntries(t *testing.T) {
	data, err := BuildArchive(archivePackage())
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{
		"script.txt",
		"metadata.txt",
		"package.json",
		"thumbnails/thumbnail_1.png",
		"thumbnails/thumbnail_3.png",
		"scenes/scene_01.png",
		"audio/scene_01.wav",
	} {
		if !names[want] {
			t.Fatalf("archive missing %s, got %v", want, names)
		}
	}
	if names["audio/scene_02.wav"] {
		t.Fatalf("scene without audio must not produce a wav entry")
	}
	if names["thumbnails/thumbnail_2.png"] {
		t.Fatalf("unrendered thumbnail variant must not produce an entry")
	}
}

func TestNarrationWAVValidation(t *testing.T) {
	pkg := archivePackage()
	if _, err := NarrationWAV(pkg, 5); err == nil {
		t.Fatalf("expected out-of-range scene to fail")
	}
	if _, err := NarrationWAV(pkg, 1); err == nil {
		t.Fatalf("expected scene without audio to fail")
	}
	wav, err := NarrationWAV(pkg, 0)
	if err != nil {
		t.Fatalf("narration wav: %v", err)
	}
	if string(wav[0:4]) != "RIFF" {
		t.Fatalf("expected RIFF container, got %q", wav[0:4])
	}
}
