// Package app runs video render jobs against the provider's long-running
// video API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tubestudio/pkg/ai"
	"tubestudio/pkg/notify"
	"tubestudio/pkg/queue"
	"tubestudio/pkg/secrets"
	"tubestudio/pkg/store"
)

// Config wires the worker's dependencies.
type Config struct {
	Store        store.Store
	Client       *ai.GeminiClient
	Box          *secrets.Box
	Events       notify.Publisher
	PollInterval time.Duration
	RenderBudget time.Duration
}

// Worker processes render jobs: it authenticates with the owner's paid
// credential, starts the video operation, polls it to completion and attaches
// the resulting URL to the package.
type Worker struct {
	store        store.Store
	client       *ai.GeminiClient
	box          *secrets.Box
	events       notify.Publisher
	pollInterval time.Duration
	renderBudget time.Duration
}

// New constructs a worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	renderBudget := cfg.RenderBudget
	if renderBudget <= 0 {
		renderBudget = 10 * time.Minute
	}
	events := cfg.Events
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Worker{
		store:        cfg.Store,
		client:       cfg.Client,
		box:          cfg.Box,
		events:       events,
		pollInterval: pollInterval,
		renderBudget: renderBudget,
	}
}

// Handle runs one render job and returns the rendered video URL. Credential
// failures are wrapped in queue.ErrPermanent so the queue does not retry
// them; the client re-prompts for credential selection instead.
func (w *Worker) Handle(ctx context.Context, job queue.RenderJob) (string, error) {
	credential, err := w.credential(job.OwnerID)
	if err != nil {
		w.events.Publish(ctx, job.OwnerID, notify.SeverityError, "Video render needs a valid paid credential")
		return "", &queue.ErrPermanent{Code: queue.FailCodeCredential, Err: err}
	}
	client, err := w.client.WithCredential(credential)
	if err != nil {
		return "", &queue.ErrPermanent{Code: queue.FailCodeCredential, Err: err}
	}

	pkg, ok, err := w.store.GetPackage(job.OwnerID, job.PackageID)
	if err != nil {
		return "", fmt.Errorf("load package: %w", err)
	}
	if !ok {
		return "", &queue.ErrPermanent{Code: queue.FailCodeGeneric, Err: fmt.Errorf("package %s gone", job.PackageID)}
	}

	// A rendered scene visual seeds the video when one exists.
	imageContext := ""
	if job.SceneIndex >= 0 && job.SceneIndex < len(pkg.Script) {
		imageContext = pkg.Script[job.SceneIndex].ImageData
	}

	slog.Info("render: starting video operation", "job", job.ID, "package", job.PackageID, "scene", job.SceneIndex)
	operation, err := client.StartVideo(ctx, job.Prompt, job.AspectRatio, imageContext)
	if err != nil {
		return "", w.classify(ctx, job, err)
	}

	url, err := w.poll(ctx, client, operation)
	if err != nil {
		return "", w.classify(ctx, job, err)
	}

	if err := w.attach(job.OwnerID, job.PackageID, url); err != nil {
		slog.Error("render: attach video url", "job", job.ID, "err", err)
		return "", err
	}
	w.events.Publish(ctx, job.OwnerID, notify.SeveritySuccess, "Video render finished")
	return url, nil
}

func (w *Worker) credential(ownerID string) (string, error) {
	prefs, ok, err := w.store.GetPreferences(ownerID)
	if err != nil {
		return "", fmt.Errorf("load preferences: %w", err)
	}
	if !ok || !prefs.CredentialSet {
		return "", errors.New("no paid credential stored")
	}
	credential, err := w.box.Open(prefs.EncryptedCredential)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return credential, nil
}

func (w *Worker) poll(ctx context.Context, client *ai.GeminiClient, operation string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.renderBudget)
	defer cancel()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("video operation %s: %w", operation, ctx.Err())
		case <-ticker.C:
			url, done, err := client.PollVideo(ctx, operation)
			if err != nil {
				return "", err
			}
			if done {
				return url, nil
			}
		}
	}
}

// attach stores the rendered URL on the package. The package may have been
// edited while rendering ran, so the current row is reloaded first.
func (w *Worker) attach(ownerID, pkgID, url string) error {
	pkg, ok, err := w.store.GetPackage(ownerID, pkgID)
	if err != nil {
		return err
	}
	if !ok {
		// Package deleted mid-render; the job still succeeded.
		return nil
	}
	pkg.VideoURL = url
	return w.store.SavePackage(ownerID, pkg)
}

// classify maps provider errors to queue failure semantics: a credential
// not-found becomes a permanent credential failure, everything else is left
// retryable.
func (w *Worker) classify(ctx context.Context, job queue.RenderJob, err error) error {
	if errors.Is(err, ai.ErrCredentialNotFound) {
		w.events.Publish(ctx, job.OwnerID, notify.SeverityError, "Video render rejected the stored credential")
		return &queue.ErrPermanent{Code: queue.FailCodeCredential, Err: err}
	}
	return err
}
