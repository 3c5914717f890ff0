// Package export renders a generated package into downloadable artifacts:
// plain-text script, metadata sheet, raw JSON snapshot, WAV narration and a
// ZIP archive bundling everything with the rendered images.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"tubestudio/pkg/audio"
	"tubestudio/pkg/domain"
)

// FormatScript renders the scene list as a readable production script.
func FormatScript(pkg domain.GeneratedPackage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", pkg.Title)
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", len(pkg.Title)))
	if pkg.Hook != "" {
		fmt.Fprintf(&b, "HOOK: %s\n\n", pkg.Hook)
	}
	for i, scene := range pkg.Script {
		fmt.Fprintf(&b, "SCENE %d  [%s]\n", i+1, scene.Timestamp)
		fmt.Fprintf(&b, "VISUAL: %s\n", scene.VisualDirection)
		fmt.Fprintf(&b, "NARRATION: %s\n\n", scene.Narration)
	}
	return b.String()
}

// FormatMetadata renders the SEO metadata sheet.
func FormatMetadata(pkg domain.GeneratedPackage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE\n%s\n\n", pkg.Title)
	fmt.Fprintf(&b, "DESCRIPTION\n%s\n\n", pkg.Description)
	fmt.Fprintf(&b, "TAGS\n%s\n\n", strings.Join(pkg.Tags, ", "))
	fmt.Fprintf(&b, "MUSIC\n%s\n\n", pkg.MusicPrompt)
	fmt.Fprintf(&b, "AESTHETIC\n%s\n\n", pkg.AestheticPrompt)
	fmt.Fprintf(&b, "BRANDING\n%s\n", pkg.BrandingNote)
	return b.String()
}

// Snapshot returns the raw JSON snapshot of the package.
func Snapshot(pkg domain.GeneratedPackage) ([]byte, error) {
	return json.MarshalIndent(pkg, "", "  ")
}

// NarrationWAV exports one scene's cached narration clip as an uncompressed
// PCM container file.
func NarrationWAV(pkg domain.GeneratedPackage, sceneIdx int) ([]byte, error) {
	if sceneIdx < 0 || sceneIdx >= len(pkg.Script) {
		return nil, fmt.Errorf("scene index %d out of range", sceneIdx)
	}
	data := pkg.Script[sceneIdx].AudioData
	if data == "" {
		return nil, fmt.Errorf("scene %d has no narration audio", sceneIdx)
	}
	return audio.WAVFromBase64(data, audio.DefaultSampleRate)
}

// BuildArchive assembles the multi-file package archive: formatted script,
// metadata sheet, raw JSON, every rendered image, and a WAV per scene that
// has narration audio.
func BuildArchive(pkg domain.GeneratedPackage) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	snapshot, err := Snapshot(pkg)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{"script.txt", []byte(FormatScript(pkg))},
		{"metadata.txt", []byte(FormatMetadata(pkg))},
		{"package.json", snapshot},
	}
	for _, f := range files {
		if err := writeEntry(zw, f.name, f.data); err != nil {
			return nil, err
		}
	}

	variants := make([]int, 0, len(pkg.ThumbnailImages))
	for idx := range pkg.ThumbnailImages {
		variants = append(variants, idx)
	}
	sort.Ints(variants)
	for _, idx := range variants {
		data, ext, err := decodeDataURI(pkg.ThumbnailImages[idx])
		if err != nil {
			return nil, fmt.Errorf("thumbnail %d: %w", idx, err)
		}
		if err := writeEntry(zw, fmt.Sprintf("thumbnails/thumbnail_%d.%s", idx+1, ext), data); err != nil {
			return nil, err
		}
	}

	for i, scene := range pkg.Script {
		if scene.ImageData != "" {
			data, ext, err := decodeDataURI(scene.ImageData)
			if err != nil {
				return nil, fmt.Errorf("scene %d image: %w", i, err)
			}
			if err := writeEntry(zw, fmt.Sprintf("scenes/scene_%02d.%s", i+1, ext), data); err != nil {
				return nil, err
			}
		}
		if scene.AudioData != "" {
			wav, err := audio.WAVFromBase64(scene.AudioData, audio.DefaultSampleRate)
			if err != nil {
				return nil, fmt.Errorf("scene %d audio: %w", i, err)
			}
			if err := writeEntry(zw, fmt.Sprintf("audio/scene_%02d.wav", i+1), wav); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func decodeDataURI(uri string) (data []byte, ext string, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", fmt.Errorf("not a data URI")
	}
	rest := strings.TrimPrefix(uri, "data:")
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return nil, "", fmt.Errorf("data URI is not base64")
	}
	mimeType := rest[:sep]
	raw, err := base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return nil, "", fmt.Errorf("decode data URI: %w", err)
	}
	switch mimeType {
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	default:
		ext = "png"
	}
	return raw, ext, nil
}
