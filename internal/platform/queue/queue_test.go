package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_ProcessesEnqueuedTasks(t *testing.T) {
	q := New(WithWorkers(2), WithQueueLogger(discardLogger()))

	var mu sync.Mutex
	var processed []uuid.UUID
	done := make(chan struct{}, 3)
	q.Register(KindEnrich, func(ctx context.Context, id uuid.UUID) error {
		mu.Lock()
		processed = append(processed, id)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		q.EnqueueEnrich(id)
	}

	for range ids {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task was not processed in time")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, ids, processed)
}

func TestQueue_ShutdownDrainsRemainingTasks(t *testing.T) {
	q := New(WithWorkers(1), WithQueueLogger(discardLogger()))

	var mu sync.Mutex
	count := 0
	q.Register(KindIndex, func(ctx context.Context, id uuid.UUID) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	q.Start(context.Background())
	for i := 0; i < 5; i++ {
		q.EnqueueIndex(uuid.New())
	}
	q.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

// パイプラインはハンドラの中から次段を投入する。バッファより多くの
// タスクを一気に流し込んでも、ワーカーが投入待ちで埋まって止まらないこと
func TestQueue_ChainedEnqueueDoesNotStallFullBuffer(t *testing.T) {
	q := New(WithWorkers(1), WithBuffer(1), WithQueueLogger(discardLogger()))

	const n = 4
	done := make(chan Kind, n*2)
	q.Register(KindEnrich, func(ctx context.Context, id uuid.UUID) error {
		q.EnqueueClassify(id)
		done <- KindEnrich
		return nil
	})
	q.Register(KindClassify, func(ctx context.Context, id uuid.UUID) error {
		done <- KindClassify
		return nil
	})

	q.Start(context.Background())

	for i := 0; i < n; i++ {
		q.EnqueueEnrich(uuid.New())
	}

	for i := 0; i < n*2; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("pipeline stalled: only %d of %d tasks completed", i, n*2)
		}
	}
	q.Shutdown()
}

func TestQueue_EnqueueAfterShutdownIsDropped(t *testing.T) {
	q := New(WithQueueLogger(discardLogger()))
	q.Register(KindEnrich, func(ctx context.Context, id uuid.UUID) error { return nil })
	q.Start(context.Background())
	q.Shutdown()

	// パニックせず黙って捨てる
	require.NotPanics(t, func() {
		q.EnqueueEnrich(uuid.New())
	})
}

func TestQueue_SynchronousModeRunsInline(t *testing.T) {
	q := New(WithSynchronous(), WithQueueLogger(discardLogger()))

	var processed []uuid.UUID
	q.Register(KindClassify, func(ctx context.Context, id uuid.UUID) error {
		processed = append(processed, id)
		return nil
	})

	id := uuid.New()
	q.EnqueueClassify(id)
	assert.Equal(t, []uuid.UUID{id}, processed)
}

func TestQueue_HandlerErrorDoesNotStopWorker(t *testing.T) {
	q := New(WithSynchronous(), WithQueueLogger(discardLogger()))

	calls := 0
	q.Register(KindEnrich, func(ctx context.Context, id uuid.UUID) error {
		calls++
		return errors.New("handler failed")
	})

	q.EnqueueEnrich(uuid.New())
	q.EnqueueEnrich(uuid.New())
	assert.Equal(t, 2, calls)
}
