package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func TestWorkersProcessEveryJob(t *testing.T) {
	q := New(4, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		done = make(chan struct{})
	)
	go func() {
		_ = q.SubscribeDocumentJobs(ctx, func(_ context.Context, job domain.ProcessingJob) error {
			mu.Lock()
			seen[job.DocumentID] = true
			if len(seen) == 10 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.PublishDocumentJob(context.Background(), domain.ProcessingJob{DocumentID: string(rune('a' + i))}))
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs were not processed")
	}
	cancel()
}

func TestConcurrencyIsBoundedByWorkers(t *testing.T) {
	q := New(16, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlight, peak, processed atomic.Int32
	go func() {
		_ = q.SubscribeDocumentJobs(ctx, func(context.Context, domain.ProcessingJob) error {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			processed.Add(1)
			return nil
		})
	}()

	for i := 0; i < 8; i++ {
		require.NoError(t, q.PublishDocumentJob(context.Background(), domain.ProcessingJob{DocumentID: "d"}))
	}
	require.Eventually(t, func() bool { return processed.Load() == 8 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPublishHonoursContextWhenFull(t *testing.T) {
	q := New(1, 1, nil)
	require.NoError(t, q.PublishDocumentJob(context.Background(), domain.ProcessingJob{DocumentID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.PublishDocumentJob(ctx, domain.ProcessingJob{DocumentID: "b"})
	assert.True(t, domain.IsKind(err, domain.ErrTemporary))
}

func TestPublishAfterShutdownFails(t *testing.T) {
	q := New(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.SubscribeDocumentJobs(ctx, func(context.Context, domain.ProcessingJob) error { return nil }))

	err := q.PublishDocumentJob(context.Background(), domain.ProcessingJob{DocumentID: "a"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdownHandsBufferedJobsToDropHandler(t *testing.T) {
	var (
		mu      sync.Mutex
		dropped []string
	)
	q := New(4, 2, nil, WithDropHandler(func(ctx context.Context, job domain.ProcessingJob) {
		assert.NoError(t, ctx.Err())
		mu.Lock()
		dropped = append(dropped, job.DocumentID)
		mu.Unlock()
	}))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.PublishDocumentJob(context.Background(), domain.ProcessingJob{DocumentID: id}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var handled atomic.Int32
	require.NoError(t, q.SubscribeDocumentJobs(ctx, func(context.Context, domain.ProcessingJob) error {
		handled.Add(1)
		return nil
	}))

	assert.Zero(t, handled.Load())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, dropped)
}

func TestCloseWithoutSubscriberDropsBufferedJobs(t *testing.T) {
	var dropped []string
	q := New(2, 1, nil, WithDropHandler(func(_ context.Context, job domain.ProcessingJob) {
		dropped = append(dropped, job.DocumentID)
	}))
	require.NoError(t, q.PublishDocumentJob(context.Background(), domain.ProcessingJob{DocumentID: "a"}))

	q.Close()

	assert.Equal(t, []string{"a"}, dropped)
	assert.ErrorIs(t, q.PublishDocumentJob(context.Background(), domain.ProcessingJob{DocumentID: "b"}), ErrClosed)
}
