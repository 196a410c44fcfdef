package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ProcessesAll(t *testing.T) {
	var sum atomic.Int64
	p := New(context.Background(), 4, 16, func(ctx context.Context, n int) {
		sum.Add(int64(n))
	})

	for i := 1; i <= 100; i++ {
		require.NoError(t, p.SubmitWait(context.Background(), i))
	}
	p.Drain()

	assert.Equal(t, int64(5050), sum.Load())
}

func TestPool_SubmitFullQueue(t *testing.T) {
	block := make(chan struct{})
	p := New(context.Background(), 1, 1, func(ctx context.Context, _ int) {
		<-block
	})

	require.True(t, p.Submit(1))
	assert.Eventually(t, func() bool { return p.QueueLen() == 0 }, time.Second, time.Millisecond)
	require.True(t, p.Submit(2))
	assert.False(t, p.Submit(3), "queue of one is full while the worker is busy")

	close(block)
	p.Drain()
}

func TestPool_SubmitWaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	p := New(context.Background(), 1, 0, func(ctx context.Context, _ int) {
		<-block
	})
	require.NoError(t, p.SubmitWait(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.SubmitWait(ctx, 2), context.DeadlineExceeded)

	close(block)
	p.Drain()
}

func TestPool_RunsConcurrently(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	p := New(context.Background(), 3, 10, func(ctx context.Context, _ int) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	})
	for i := 0; i < 6; i++ {
		require.NoError(t, p.SubmitWait(context.Background(), i))
	}
	p.Drain()

	assert.Equal(t, 3, peak)
	assert.Equal(t, 10, p.QueueCap())
}

func TestPool_DrainReleasesBlockedSubmitters(t *testing.T) {
	block := make(chan struct{})
	var processed atomic.Int64
	p := New(context.Background(), 1, 1, func(ctx context.Context, _ int) {
		<-block
		processed.Add(1)
	})

	require.NoError(t, p.SubmitWait(context.Background(), 1))
	assert.Eventually(t, func() bool { return p.QueueLen() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.SubmitWait(context.Background(), 2))

	errs := make(chan error, 1)
	go func() { errs <- p.SubmitWait(context.Background(), 3) }()

	drained := make(chan struct{})
	go func() {
		p.Drain()
		close(drained)
	}()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked submitter was not released by Drain")
	}

	close(block)
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return")
	}
	assert.Equal(t, int64(2), processed.Load(), "queued work is still processed")
	assert.ErrorIs(t, p.SubmitWait(context.Background(), 4), ErrClosed)
	assert.False(t, p.Submit(5))
}
