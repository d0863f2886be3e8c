package states

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q, c := NewQueue[int]()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Send(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		v, err := c.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestQueue_RecvBlocksUntilSend(t *testing.T) {
	q, c := NewQueue[string]()

	got := make(chan string, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v, err := c.Recv(ctx)
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Send("cmd"))

	select {
	case v := <-got:
		assert.Equal(t, "cmd", v)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q, c := NewQueue[int]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, q.Send(n))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, c.Len())
	seen := 0
	for {
		if _, ok := c.TryRecv(); !ok {
			break
		}
		seen++
	}
	assert.Equal(t, 1000, seen)
}

func TestQueue_TryRecvEmpty(t *testing.T) {
	_, c := NewQueue[int]()
	_, ok := c.TryRecv()
	assert.False(t, ok)
}

func TestQueue_CloseDeliversRemaining(t *testing.T) {
	q, c := NewQueue[int]()
	require.NoError(t, q.Send(1))
	require.NoError(t, q.Send(2))
	q.Close()

	assert.ErrorIs(t, q.Send(3), ErrWatcherClosed)

	ctx := context.Background()
	v, err := c.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = c.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = c.Recv(ctx)
	assert.ErrorIs(t, err, ErrWatcherClosed)
}

func TestQueue_CloseWakesBlockedConsumer(t *testing.T) {
	q, c := NewQueue[int]()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Recv(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrWatcherClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken by close")
	}
}

func TestQueue_WatchMirrorsLastSent(t *testing.T) {
	q, _ := NewQueue[int]()
	sub := q.Watch()

	require.NoError(t, q.Send(1))
	require.NoError(t, q.Send(2))
	require.NoError(t, q.Send(3))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestQueue_WatchClosedAfterQueueClose(t *testing.T) {
	q, _ := NewQueue[int]()
	sub := q.Watch()
	q.Close()

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrWatcherClosed)
}

func TestQueue_RecvContextCanceled(t *testing.T) {
	_, c := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Recv(ctx)
	assert.ErrorIs(t, err, ErrRecv)
	assert.ErrorIs(t, err, context.Canceled)
}
