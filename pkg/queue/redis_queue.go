// Package queue runs long-running video render jobs over Redis streams.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tubestudio/internal/util"
)

// Job lifecycle states.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Failure codes surfaced to the client.
const (
	// FailCodeCredential marks a paid-credential rejection; the client
	// should re-prompt for credential selection instead of retrying.
	FailCodeCredential = "credential"
	FailCodeGeneric    = "generic"
)

// RenderJob tracks one video generation request through the queue.
type RenderJob struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	PackageID    string    `json:"packageId"`
	SceneIndex   int       `json:"sceneIndex"` // -1 renders from the package title prompt
	Prompt       string    `json:"prompt"`
	AspectRatio  string    `json:"aspectRatio"`
	Status       string    `json:"status"`
	FailCode     string    `json:"failCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	VideoURL     string    `json:"videoUrl,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ErrPermanent wraps handler failures that must not be retried (for example
// a rejected credential).
type ErrPermanent struct {
	Code string
	Err  error
}

func (e *ErrPermanent) Error() string { return e.Err.Error() }
func (e *ErrPermanent) Unwrap() error { return e.Err }

// RedisRenderQueue is a consumer-group backed job queue on a Redis stream.
type RedisRenderQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

// RedisQueueConfig configures the render queue. Zero values fall back to
// defaults.
type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

// NewRedisRenderQueue validates config and connects the queue.
func NewRedisRenderQueue(cfg RedisQueueConfig) (*RedisRenderQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "render"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = uuid.NewString()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisRenderQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       jobTTL,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Enqueue registers a render job and pushes it on the stream.
func (q *RedisRenderQueue) Enqueue(ctx context.Context, job RenderJob) (RenderJob, error) {
	if strings.TrimSpace(job.PackageID) == "" {
		return RenderJob{}, errors.New("packageId required")
	}
	if strings.TrimSpace(job.OwnerID) == "" {
		return RenderJob{}, errors.New("ownerId required")
	}
	job.ID = util.NewPrefixedID("job")
	job.Status = StatusQueued
	job.Attempts = 0
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	if err := q.writeStatus(ctx, job); err != nil {
		return RenderJob{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{"job_id": job.ID},
	}).Err(); err != nil {
		return RenderJob{}, err
	}
	return job, nil
}

// GetJob fetches the state of one job.
func (q *RedisRenderQueue) GetJob(ctx context.Context, jobID string) (RenderJob, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return RenderJob{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return RenderJob{}, false, err
	}
	if len(data) == 0 {
		return RenderJob{}, false, nil
	}
	return decodeRenderJob(jobID, data), true, nil
}

// Start launches consumer goroutines. The handler returns the rendered video
// URL on success; wrapping a failure in ErrPermanent stops retries.
func (q *RedisRenderQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, RenderJob) (string, error)) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisRenderQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			// best-effort; errors will surface on consume
		}
	})
}

func (q *RedisRenderQueue) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, RenderJob) (string, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisRenderQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisRenderQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, RenderJob) (string, error)) {
	jobID, _ := msg.Values["job_id"].(string)
	if jobID == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markProcessing(ctx, jobID)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	videoURL, err := handler(ctx, job)
	if err == nil {
		_ = q.markDone(ctx, jobID, videoURL)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	var perm *ErrPermanent
	if errors.As(err, &perm) {
		_ = q.markFailed(ctx, jobID, perm.Code, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if job.Attempts >= q.maxRetries {
		_ = q.markFailed(ctx, jobID, FailCodeGeneric, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	_ = q.markQueued(ctx, jobID, err.Error())
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, jobID)
}

func (q *RedisRenderQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisRenderQueue) requeueAndAck(ctx context.Context, msgID, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{"job_id": jobID},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisRenderQueue) markProcessing(ctx context.Context, jobID string) (RenderJob, error) {
	job, ok, err := q.GetJob(ctx, jobID)
	if err != nil {
		return RenderJob{}, err
	}
	if !ok {
		return RenderJob{}, fmt.Errorf("job %s vanished", jobID)
	}
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := q.writeStatus(ctx, job); err != nil {
		return RenderJob{}, err
	}
	return job, nil
}

func (q *RedisRenderQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusQueued
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisRenderQueue) markDone(ctx context.Context, jobID, videoURL string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusDone
	job.VideoURL = videoURL
	job.FailCode = ""
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisRenderQueue) markFailed(ctx context.Context, jobID, failCode, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusFailed
	job.FailCode = failCode
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisRenderQueue) writeStatus(ctx context.Context, job RenderJob) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":          job.ID,
		"ownerId":     job.OwnerID,
		"packageId":   job.PackageID,
		"sceneIndex":  strconv.Itoa(job.SceneIndex),
		"prompt":      job.Prompt,
		"aspectRatio": job.AspectRatio,
		"status":      job.Status,
		"failCode":    job.FailCode,
		"error":       job.ErrorMessage,
		"videoUrl":    job.VideoURL,
		"attempts":    strconv.Itoa(job.Attempts),
		"createdAt":   job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":   job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisRenderQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func decodeRenderJob(jobID string, data map[string]string) RenderJob {
	job := RenderJob{ID: jobID}
	job.OwnerID = data["ownerId"]
	job.PackageID = data["packageId"]
	job.Prompt = data["prompt"]
	job.AspectRatio = data["aspectRatio"]
	job.Status = data["status"]
	job.FailCode = data["failCode"]
	job.ErrorMessage = data["error"]
	job.VideoURL = data["videoUrl"]
	if v := data["sceneIndex"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.SceneIndex = n
		}
	}
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job
}
