package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestEnqueueAndGetJob(t *testing.T) {
	q, ctx := newTestQueue(t)

	job, err := q.Enqueue(ctx, "doc-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusQueued || job.DocumentID != "doc-1" {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, found, err := q.GetJob(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("get job: found=%v err=%v", found, err)
	}
	if got.DocumentID != "doc-1" || got.Status != StatusQueued {
		t.Fatalf("unexpected stored job: %+v", got)
	}

	if _, found, err := q.GetJob(ctx, "missing"); err != nil || found {
		t.Fatalf("missing job: found=%v err=%v", found, err)
	}
}

func TestHandleSuccessRecordsOutcomesAndAcks(t *testing.T) {
	q, ctx := newTestQueue(t)
	msg, job := readPendingMessage(t, q, ctx, "doc-2")

	outcomes := json.RawMessage(`[{"filename":"a.jpg","status":"ocr_ok"}]`)
	q.handle(ctx, msg, func(ctx context.Context, got Job) (json.RawMessage, error) {
		if got.ID != job.ID || got.DocumentID != "doc-2" {
			t.Fatalf("handler got wrong job: %+v", got)
		}
		return outcomes, nil
	})

	done, found, err := q.GetJob(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("get job: found=%v err=%v", found, err)
	}
	if done.Status != StatusDone || done.Attempts != 1 {
		t.Fatalf("unexpected job after success: %+v", done)
	}
	if string(done.Outcomes) != string(outcomes) {
		t.Fatalf("outcomes not recorded: %s", done.Outcomes)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}
}

func TestHandleFailureRequeuesUntilMaxRetries(t *testing.T) {
	q, ctx := newTestQueue(t)
	q.maxRetries = 2
	msg, job := readPendingMessage(t, q, ctx, "doc-3")

	q.handle(ctx, msg, func(context.Context, Job) (json.RawMessage, error) {
		return nil, errors.New("ocr engine down")
	})

	retry, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if retry.Status != StatusQueued || retry.ErrorMessage != "ocr engine down" || retry.Attempts != 1 {
		t.Fatalf("unexpected job after first failure: %+v", retry)
	}

	msg2 := readNextMessage(t, q, ctx)
	q.handle(ctx, msg2, func(context.Context, Job) (json.RawMessage, error) {
		return nil, errors.New("ocr engine down")
	})

	failed, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if failed.Status != StatusFailed || failed.Attempts != 2 {
		t.Fatalf("expected terminal failure, got %+v", failed)
	}
	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 0 {
		t.Fatalf("expected drained stream, got len=%d", streamLen)
	}
}

func TestRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, ctx := newTestQueue(t)
	msg, job := readPendingMessage(t, q, ctx, "doc-4")

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msg.ID, job.ID, job.DocumentID); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}
}

func newTestQueue(t *testing.T) (*RedisJobQueue, context.Context) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	q, err := NewRedisJobQueue(Config{
		Addr:       redisSrv.Addr(),
		Stream:     "test:ingest",
		Group:      "test-group",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()
	q.ensureGroup(ctx)
	return q, ctx
}

func readPendingMessage(t *testing.T, q *RedisJobQueue, ctx context.Context, documentID string) (redis.XMessage, Job) {
	t.Helper()

	job, err := q.Enqueue(ctx, documentID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return readNextMessage(t, q, ctx), job
}

func readNextMessage(t *testing.T, q *RedisJobQueue, ctx context.Context) redis.XMessage {
	t.Helper()

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
	return streams[0].Messages[0]
}
