package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRenderQueueEnqueueAndGetJob(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisRenderQueue(RedisQueueConfig{
		Addr:   redisSrv.Addr(),
		Stream: "test:render",
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()

	job, err := q.Enqueue(ctx, RenderJob{
		OwnerID:     "user-1",
		PackageID:   "pkg-1",
		SceneIndex:  -1,
		Prompt:      "a rocket launch at dawn",
		AspectRatio: "16:9",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected assigned job id")
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !ok {
		t.Fatalf("expected job to exist")
	}
	if got.OwnerID != "user-1" || got.PackageID != "pkg-1" || got.SceneIndex != -1 {
		t.Fatalf("unexpected job fields: %+v", got)
	}
	if got.Prompt != "a rocket launch at dawn" {
		t.Fatalf("unexpected prompt: %q", got.Prompt)
	}
}

func TestRenderQueueEnqueueRequiresIDs(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisRenderQueue(RedisQueueConfig{Addr: redisSrv.Addr(), Stream: "test:render"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	if _, err := q.Enqueue(context.Background(), RenderJob{OwnerID: "user-1"}); err == nil {
		t.Fatalf("expected missing package id to fail")
	}
	if _, err := q.Enqueue(context.Background(), RenderJob{PackageID: "pkg-1"}); err == nil {
		t.Fatalf("expected missing owner id to fail")
	}
}

func TestRenderQueueMarkTransitions(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisRenderQueue(RedisQueueConfig{Addr: redisSrv.Addr(), Stream: "test:render"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()

	job, err := q.Enqueue(ctx, RenderJob{OwnerID: "user-1", PackageID: "pkg-1", SceneIndex: 2})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processing, err := q.markProcessing(ctx, job.ID)
	if err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if processing.Status != StatusProcessing || processing.Attempts != 1 {
		t.Fatalf("unexpected processing state: %+v", processing)
	}

	if err := q.markDone(ctx, job.ID, "https://videos.example/pkg-1.mp4"); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	done, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if done.Status != StatusDone || done.VideoURL != "https://videos.example/pkg-1.mp4" {
		t.Fatalf("unexpected done state: %+v", done)
	}

	if err := q.markFailed(ctx, job.ID, FailCodeCredential, "credential rejected"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	failed, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if failed.Status != StatusFailed || failed.FailCode != FailCodeCredential {
		t.Fatalf("unexpected failed state: %+v", failed)
	}
}

func TestRenderQueueRequeueAndAckSuccess(t *testing.T) {
	q, ctx, msgID, jobID := newPendingQueueMessage(t)

	if err := q.requeueAndAck(ctx, msgID, jobID); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-2",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("read requeued message: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one requeued message, got %+v", streams)
	}
	if got := streams[0].Messages[0]; got.Values["job_id"] != jobID {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestRenderQueueRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msgID, jobID := newPendingQueueMessage(t)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msgID, jobID); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}

	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 1 {
		t.Fatalf("expected no new message in stream on failure, got len=%d", streamLen)
	}
}

func newPendingQueueMessage(t *testing.T) (*RedisRenderQueue, context.Context, string, string) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	q, err := NewRedisRenderQueue(RedisQueueConfig{
		Addr:       redisSrv.Addr(),
		Stream:     "test:render",
		Group:      "test-group",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, RenderJob{OwnerID: "user-1", PackageID: "pkg-1", SceneIndex: -1})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %+v", streams)
	}

	return q, ctx, streams[0].Messages[0].ID, job.ID
}
