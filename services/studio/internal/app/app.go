// Package app orchestrates the studio: package generation, per-asset
// regeneration, narration editing, preferences, exports and video render
// job submission.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tubestudio/pkg/channel"
	"tubestudio/pkg/domain"
	"tubestudio/pkg/export"
	"tubestudio/pkg/notify"
	"tubestudio/pkg/queue"
	"tubestudio/pkg/secrets"
	"tubestudio/pkg/storage"
	"tubestudio/pkg/store"
)

// Thumbnails and rendered video share the YouTube frame shape; scene
// visuals are rendered in the same ratio so exports line up.
const (
	thumbnailAspectRatio = "16:9"
	sceneAspectRatio     = "16:9"
	videoAspectRatio     = "16:9"

	exportURLExpiry   = time.Hour
	speechConcurrency = 3
)

// Generator produces package content and per-scene assets.
type Generator interface {
	GeneratePackage(ctx context.Context, req domain.GenerationRequest, ch domain.ChannelConfig) (domain.GeneratedPackage, error)
	GenerateThumbnail(ctx context.Context, prompt, aspectRatio string) (string, error)
	GenerateSceneImage(ctx context.Context, direction, aesthetic, aspectRatio string) (string, error)
	GenerateSpeech(ctx context.Context, text, voiceID string) (string, error)
}

// RenderQueue accepts video render jobs and reports their state.
type RenderQueue interface {
	Enqueue(ctx context.Context, job queue.RenderJob) (queue.RenderJob, error)
	GetJob(ctx context.Context, jobID string) (queue.RenderJob, bool, error)
}

// App is the studio orchestration service.
type App struct {
	store   store.Store
	gen     Generator
	box     *secrets.Box
	renders RenderQueue
	objects storage.ObjectStore
	events  notify.Publisher
	slots   *SlotTracker

	// saveMu serializes reload-mutate-save cycles so concurrent asset
	// generations for different slots of the same package both land.
	saveMu sync.Mutex
}

// New wires the studio application.
func New(st store.Store, gen Generator, box *secrets.Box, renders RenderQueue, objects storage.ObjectStore, events notify.Publisher) *App {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &App{
		store:   st,
		gen:     gen,
		box:     box,
		renders: renders,
		objects: objects,
		events:  events,
		slots:   NewSlotTracker(),
	}
}

// Channels lists the available channel personas.
func (a *App) Channels() []domain.ChannelConfig {
	return channel.List()
}

// CreatePackage generates a full production package for a topic and persists
// it. If generation succeeds but the save fails, the generated package is
// still returned alongside ErrSaveFailed so the content is not lost.
func (a *App) CreatePackage(ctx context.Context, ownerID string, req domain.GenerationRequest) (domain.GeneratedPackage, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return domain.GeneratedPackage{}, ErrEmptyTopic
	}
	ch, err := channel.Lookup(req.ChannelID)
	if err != nil {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: %q", ErrUnknownChannel, req.ChannelID)
	}

	// Omitted mood and duration fall back to the user's defaults; anything
	// outside the enumerated labels is rejected before it reaches the
	// prompt.
	if req.Mood == "" || req.Duration == "" {
		prefs, err := a.GetPreferences(ownerID)
		if err != nil {
			return domain.GeneratedPackage{}, err
		}
		if req.Mood == "" {
			req.Mood = prefs.DefaultMood
		}
		if req.Duration == "" {
			req.Duration = prefs.DefaultDuration
		}
	}
	if !domain.ValidMood(req.Mood) {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: %q", ErrInvalidMood, req.Mood)
	}
	if !req.Duration.Valid() {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: %q", ErrInvalidDuration, req.Duration)
	}

	pkg, err := a.gen.GeneratePackage(ctx, req, ch)
	if err != nil {
		a.events.Publish(ctx, ownerID, notify.SeverityError, "Package generation failed")
		return domain.GeneratedPackage{}, err
	}

	saved, err := a.store.InsertPackage(ownerID, pkg)
	if err != nil {
		slog.Error("save generated package", "owner", ownerID, "err", err)
		a.events.Publish(ctx, ownerID, notify.SeverityError, "Package could not be saved")
		return pkg, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	a.events.Publish(ctx, ownerID, notify.SeveritySuccess, fmt.Sprintf("Package %q is ready", saved.Title))
	return saved, nil
}

// GetPackage fetches one of the owner's packages.
func (a *App) GetPackage(ownerID, id string) (domain.GeneratedPackage, error) {
	pkg, ok, err := a.store.GetPackage(ownerID, id)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	if !ok {
		return domain.GeneratedPackage{}, store.ErrNotFound
	}
	return pkg, nil
}

// ListPackages returns the owner's saved packages, newest first.
func (a *App) ListPackages(ownerID string, limit int) ([]domain.GeneratedPackage, error) {
	return a.store.ListPackages(ownerID, limit)
}

// DeletePackage removes a package and forgets its slot state.
func (a *App) DeletePackage(ctx context.Context, ownerID, id string) error {
	if err := a.store.DeletePackage(ownerID, id); err != nil {
		return err
	}
	a.slots.Forget(id)
	a.events.Publish(ctx, ownerID, notify.SeverityInfo, "Package deleted")
	return nil
}

// Slots reports the asset slot states for one package.
func (a *App) Slots(ownerID, pkgID string) ([]SlotStatus, error) {
	if _, err := a.GetPackage(ownerID, pkgID); err != nil {
		return nil, err
	}
	return a.slots.Statuses(pkgID), nil
}

// GenerateThumbnail renders the thumbnail variant at idx from its stored
// concept prompt and persists it on the package.
func (a *App) GenerateThumbnail(ctx context.Context, ownerID, pkgID string, idx int) (domain.GeneratedPackage, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	if idx < 0 || idx >= len(pkg.ThumbnailIdeas) {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: thumbnail %d", ErrIndexOutOfRange, idx)
	}
	if err := a.slots.Begin(pkgID, AssetThumbnail, idx); err != nil {
		return domain.GeneratedPackage{}, err
	}

	image, err := a.gen.GenerateThumbnail(ctx, pkg.ThumbnailIdeas[idx], thumbnailAspectRatio)
	if err != nil {
		a.slots.Finish(pkgID, AssetThumbnail, idx, err)
		a.events.Publish(ctx, ownerID, notify.SeverityError, fmt.Sprintf("Thumbnail %d failed", idx+1))
		return domain.GeneratedPackage{}, err
	}

	updated, err := a.applyAndSave(ownerID, pkgID, func(p domain.GeneratedPackage) domain.GeneratedPackage {
		return p.WithThumbnail(idx, image)
	})
	a.slots.Finish(pkgID, AssetThumbnail, idx, err)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	a.events.Publish(ctx, ownerID, notify.SeveritySuccess, fmt.Sprintf("Thumbnail %d rendered", idx+1))
	return updated, nil
}

// GenerateSceneImage renders the visual for scene idx, folding in the
// package's aesthetic prompt, and persists it.
func (a *App) GenerateSceneImage(ctx context.Context, ownerID, pkgID string, idx int) (domain.GeneratedPackage, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	if idx < 0 || idx >= len(pkg.Script) {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: scene %d", ErrIndexOutOfRange, idx)
	}
	if err := a.slots.Begin(pkgID, AssetSceneImage, idx); err != nil {
		return domain.GeneratedPackage{}, err
	}

	image, err := a.gen.GenerateSceneImage(ctx, pkg.Script[idx].VisualDirection, pkg.AestheticPrompt, sceneAspectRatio)
	if err != nil {
		a.slots.Finish(pkgID, AssetSceneImage, idx, err)
		a.events.Publish(ctx, ownerID, notify.SeverityError, fmt.Sprintf("Scene %d visual failed", idx+1))
		return domain.GeneratedPackage{}, err
	}

	updated, err := a.applyAndSave(ownerID, pkgID, func(p domain.GeneratedPackage) domain.GeneratedPackage {
		return p.WithSceneImage(idx, image)
	})
	a.slots.Finish(pkgID, AssetSceneImage, idx, err)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	a.events.Publish(ctx, ownerID, notify.SeveritySuccess, fmt.Sprintf("Scene %d visual rendered", idx+1))
	return updated, nil
}

// GenerateSceneAudio synthesizes narration for scene idx with the channel's
// voice and caches the clip on the package.
func (a *App) GenerateSceneAudio(ctx context.Context, ownerID, pkgID string, idx int) (domain.GeneratedPackage, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	if idx < 0 || idx >= len(pkg.Script) {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: scene %d", ErrIndexOutOfRange, idx)
	}
	ch, err := channel.Lookup(pkg.ChannelID)
	if err != nil {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: %q", ErrUnknownChannel, pkg.ChannelID)
	}
	if err := a.slots.Begin(pkgID, AssetSceneAudio, idx); err != nil {
		return domain.GeneratedPackage{}, err
	}

	clip, err := a.gen.GenerateSpeech(ctx, pkg.Script[idx].Narration, ch.VoiceID)
	if err != nil {
		a.slots.Finish(pkgID, AssetSceneAudio, idx, err)
		a.events.Publish(ctx, ownerID, notify.SeverityError, fmt.Sprintf("Scene %d narration failed", idx+1))
		return domain.GeneratedPackage{}, err
	}

	updated, err := a.applyAndSave(ownerID, pkgID, func(p domain.GeneratedPackage) domain.GeneratedPackage {
		return p.WithSceneAudio(idx, clip)
	})
	a.slots.Finish(pkgID, AssetSceneAudio, idx, err)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	a.events.Publish(ctx, ownerID, notify.SeveritySuccess, fmt.Sprintf("Scene %d narration ready", idx+1))
	return updated, nil
}

// UpdateSceneNarration replaces scene idx's narration text. The scene's
// cached audio is cleared because it no longer matches; other scenes keep
// theirs.
func (a *App) UpdateSceneNarration(ctx context.Context, ownerID, pkgID string, idx int, text string) (domain.GeneratedPackage, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	if idx < 0 || idx >= len(pkg.Script) {
		return domain.GeneratedPackage{}, fmt.Errorf("%w: scene %d", ErrIndexOutOfRange, idx)
	}
	return a.applyAndSave(ownerID, pkgID, func(p domain.GeneratedPackage) domain.GeneratedPackage {
		return p.WithSceneNarration(idx, text)
	})
}

// RequestVideo queues a render job for a package. sceneIdx -1 renders from
// the package's title and hook; a non-negative index renders that scene's
// visual direction. Requires a stored paid credential.
func (a *App) RequestVideo(ctx context.Context, ownerID, pkgID string, sceneIdx int) (queue.RenderJob, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return queue.RenderJob{}, err
	}
	prefs, ok, err := a.store.GetPreferences(ownerID)
	if err != nil {
		return queue.RenderJob{}, err
	}
	if !ok || !prefs.CredentialSet {
		return queue.RenderJob{}, ErrCredentialRequired
	}

	var prompt string
	switch {
	case sceneIdx < 0:
		prompt = fmt.Sprintf("%s. %s", pkg.Title, pkg.Hook)
		sceneIdx = -1
	case sceneIdx < len(pkg.Script):
		prompt = pkg.Script[sceneIdx].VisualDirection
		if strings.TrimSpace(pkg.AestheticPrompt) != "" {
			prompt = fmt.Sprintf("%s. Visual style: %s", prompt, pkg.AestheticPrompt)
		}
	default:
		return queue.RenderJob{}, fmt.Errorf("%w: scene %d", ErrIndexOutOfRange, sceneIdx)
	}

	job, err := a.renders.Enqueue(ctx, queue.RenderJob{
		OwnerID:     ownerID,
		PackageID:   pkgID,
		SceneIndex:  sceneIdx,
		Prompt:      prompt,
		AspectRatio: videoAspectRatio,
	})
	if err != nil {
		return queue.RenderJob{}, err
	}
	a.events.Publish(ctx, ownerID, notify.SeverityInfo, "Video render queued")
	return job, nil
}

// JobStatus reports the state of one render job, scoped to its owner.
func (a *App) JobStatus(ctx context.Context, ownerID, jobID string) (queue.RenderJob, error) {
	job, ok, err := a.renders.GetJob(ctx, jobID)
	if err != nil {
		return queue.RenderJob{}, err
	}
	if !ok || job.OwnerID != ownerID {
		return queue.RenderJob{}, store.ErrNotFound
	}
	return job, nil
}

// GetPreferences returns the user's studio settings, or defaults when none
// are stored yet.
func (a *App) GetPreferences(userID string) (domain.Preferences, error) {
	prefs, ok, err := a.store.GetPreferences(userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	if !ok {
		return domain.Preferences{
			UserID:          userID,
			DefaultMood:     domain.MoodHighEnergy,
			DefaultDuration: domain.DurationMedium,
		}, nil
	}
	return prefs, nil
}

// PreferencesUpdate carries a settings change. A nil Credential leaves the
// stored credential untouched; an empty string clears it.
type PreferencesUpdate struct {
	DefaultMood     string
	DefaultDuration domain.DurationBucket
	Credential      *string
}

// SavePreferences stores the user's studio settings. The paid credential is
// encrypted before it touches the database and never returned in plaintext.
func (a *App) SavePreferences(ctx context.Context, userID string, update PreferencesUpdate) (domain.Preferences, error) {
	prefs, err := a.GetPreferences(userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	prefs.UserID = userID
	if update.DefaultMood != "" {
		if !domain.ValidMood(update.DefaultMood) {
			return domain.Preferences{}, fmt.Errorf("%w: %q", ErrInvalidMood, update.DefaultMood)
		}
		prefs.DefaultMood = update.DefaultMood
	}
	if update.DefaultDuration != "" {
		if !update.DefaultDuration.Valid() {
			return domain.Preferences{}, fmt.Errorf("%w: %q", ErrInvalidDuration, update.DefaultDuration)
		}
		prefs.DefaultDuration = update.DefaultDuration
	}
	if update.Credential != nil {
		if *update.Credential == "" {
			prefs.EncryptedCredential = nil
			prefs.CredentialSet = false
		} else {
			sealed, err := a.box.Seal(*update.Credential)
			if err != nil {
				return domain.Preferences{}, fmt.Errorf("seal credential: %w", err)
			}
			prefs.EncryptedCredential = sealed
			prefs.CredentialSet = true
		}
	}
	prefs.UpdatedAt = time.Now().UTC()
	if err := a.store.SavePreferences(prefs); err != nil {
		return domain.Preferences{}, err
	}
	a.events.Publish(ctx, userID, notify.SeveritySuccess, "Settings saved")
	return prefs, nil
}

// ExportSnapshot returns the package's raw JSON.
func (a *App) ExportSnapshot(ownerID, pkgID string) ([]byte, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return nil, err
	}
	return export.Snapshot(pkg)
}

// ExportScript returns the formatted production script.
func (a *App) ExportScript(ownerID, pkgID string) (string, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return "", err
	}
	return export.FormatScript(pkg), nil
}

// ExportMetadata returns the formatted SEO metadata sheet.
func (a *App) ExportMetadata(ownerID, pkgID string) (string, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return "", err
	}
	return export.FormatMetadata(pkg), nil
}

// ExportNarrationWAV returns one scene's cached narration as a WAV file.
func (a *App) ExportNarrationWAV(ownerID, pkgID string, sceneIdx int) ([]byte, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return nil, err
	}
	return export.NarrationWAV(pkg, sceneIdx)
}

// ExportArchive synthesizes any missing narration clips, bundles the package
// into a ZIP archive, uploads it to object storage and returns a pre-signed
// download URL. Newly synthesized clips are cached back on the package so
// the next export reuses them.
func (a *App) ExportArchive(ctx context.Context, ownerID, pkgID string) (string, error) {
	pkg, err := a.GetPackage(ownerID, pkgID)
	if err != nil {
		return "", err
	}
	ch, err := channel.Lookup(pkg.ChannelID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, pkg.ChannelID)
	}

	filled, err := export.FillSceneAudio(ctx, pkg, a.gen.GenerateSpeech, ch.VoiceID, speechConcurrency)
	if err != nil {
		a.events.Publish(ctx, ownerID, notify.SeverityError, "Export failed during narration synthesis")
		return "", err
	}
	if _, err := a.applyAndSave(ownerID, pkgID, func(p domain.GeneratedPackage) domain.GeneratedPackage {
		for i := range filled.Script {
			if p.Script[i].AudioData == "" && filled.Script[i].AudioData != "" {
				p = p.WithSceneAudio(i, filled.Script[i].AudioData)
			}
		}
		return p
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("cache export narration", "package", pkgID, "err", err)
	}

	archive, err := export.BuildArchive(filled)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("exports/%s/%s-%d.zip", ownerID, pkgID, time.Now().UTC().Unix())
	if err := a.objects.PutBytes(ctx, key, archive, "application/zip"); err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, exportURLExpiry)
	if err != nil {
		return "", err
	}
	a.events.Publish(ctx, ownerID, notify.SeveritySuccess, "Export archive ready")
	return url, nil
}

// applyAndSave reloads the package, applies one copy-on-write mutation and
// saves the result. The cycle runs under a lock so two concurrent asset
// generations for the same package cannot overwrite each other's writes.
func (a *App) applyAndSave(ownerID, pkgID string, mutate func(domain.GeneratedPackage) domain.GeneratedPackage) (domain.GeneratedPackage, error) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	pkg, ok, err := a.store.GetPackage(ownerID, pkgID)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	if !ok {
		return domain.GeneratedPackage{}, store.ErrNotFound
	}
	updated := mutate(pkg)
	if err := a.store.SavePackage(ownerID, updated); err != nil {
		return domain.GeneratedPackage{}, err
	}
	return updated, nil
}
