package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				t.Error(err)
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, maxSeen.Load())
	require.Zero(t, l.size())
}

func TestLocalLockRespectsContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	require.Zero(t, l.size())

	unlock, err = l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func TestLockAllOrdersAndDedups(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlock, err := LockAll(ctx, l, "b", "a", "b")
	require.NoError(t, err)
	require.Equal(t, 2, l.size())

	done := make(chan struct{})
	go func() {
		defer close(done)
		u, err := LockAll(ctx, l, "a", "c")
		if err == nil {
			u()
		}
	}()

	select {
	case <-done:
		t.Fatal("second LockAll must wait for key a")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-done
	require.Zero(t, l.size())
}

func TestKeys(t *testing.T) {
	require.Equal(t, "context/c1", ContextKey("c1"))
	require.Equal(t, "deployment/P1/my_app_1", PairKey("P1", "my_app_1"))
}
