package etcd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *clientv3.Client) {
	t.Helper()
	clnt := startEtcd(t)
	reg := NewRegistry(clnt)
	reg.now = func() time.Time { return testNow }
	return reg, clnt
}

func TestPutContextCompareAndSwap(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	c := models.AppContext{
		ID:                "ctx-1",
		AppDID:            "my_app_1",
		PlatformID:        "P1",
		CallbackReference: "http://client/cb",
		State:             models.ContextActive,
	}
	created, err := reg.PutContext(ctx, c, 0)
	require.NoError(t, err)
	require.NotZero(t, created.Version)
	require.Equal(t, testNow, created.CreatedAt)

	_, err = reg.PutContext(ctx, c, 0)
	require.ErrorIs(t, err, registry.ErrConflict, "second create must not overwrite")

	staged := created
	staged.State = models.ContextMigrating
	staged.MigrationTarget = "P2"
	staged, err = reg.PutContext(ctx, staged, created.Version)
	require.NoError(t, err)
	require.Greater(t, staged.Version, created.Version)

	_, err = reg.PutContext(ctx, created, created.Version)
	require.ErrorIs(t, err, registry.ErrConflict, "stale version")

	stored, err := reg.GetContext(ctx, "ctx-1")
	require.NoError(t, err)
	require.Equal(t, staged, stored)
	require.Equal(t, models.PlatformID("P2"), stored.MigrationTarget)

	next := staged
	next.PlatformID = "P2"
	next.State = models.ContextActive
	next.MigrationTarget = ""
	committed, err := reg.PutContext(ctx, next, staged.Version)
	require.NoError(t, err)

	onOrigin, err := reg.ListContextsByPlatformApp(ctx, "P1", "my_app_1")
	require.NoError(t, err)
	require.Empty(t, onOrigin, "placement must move with the context")
	onOrigin, err = reg.ListContextsByPlatform(ctx, "P1")
	require.NoError(t, err)
	require.Empty(t, onOrigin)

	onTarget, err := reg.ListContextsByPlatformApp(ctx, "P2", "my_app_1")
	require.NoError(t, err)
	require.Equal(t, []models.AppContext{committed}, onTarget)

	_, err = reg.RemoveContext(ctx, "ctx-1", staged.Version)
	require.ErrorIs(t, err, registry.ErrConflict)

	removed, err := reg.RemoveContext(ctx, "ctx-1", committed.Version)
	require.NoError(t, err)
	assert.Equal(t, models.ContextDeleted, removed.State)
	assert.Equal(t, models.PlatformID("P2"), removed.PlatformID)

	_, err = reg.GetContext(ctx, "ctx-1")
	require.ErrorIs(t, err, registry.ErrNotFound)
	_, err = reg.RemoveContext(ctx, "ctx-1", committed.Version)
	require.ErrorIs(t, err, registry.ErrNotFound)

	onTarget, err = reg.ListContextsByPlatform(ctx, "P2")
	require.NoError(t, err)
	require.Empty(t, onTarget)
}

func TestPutContextOneWriterWins(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.PutContext(ctx, models.AppContext{
		ID:         "ctx-1",
		AppDID:     "my_app_1",
		PlatformID: "P1",
		State:      models.ContextActive,
	}, 0)
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		won       atomic.Int32
		conflicts atomic.Int32
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := created
			next.PlatformID = models.PlatformID(fmt.Sprintf("P%d", i+2))
			_, err := reg.PutContext(ctx, next, created.Version)
			switch {
			case err == nil:
				won.Add(1)
			case assert.ErrorIs(t, err, registry.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, won.Load())
	require.EqualValues(t, writers-1, conflicts.Load())

	all, err := reg.ListContexts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	placed, err := reg.ListContextsByPlatform(ctx, all[0].PlatformID)
	require.NoError(t, err)
	require.Len(t, placed, 1, "exactly one placement copy survives")
	stale, err := reg.ListContextsByPlatform(ctx, "P1")
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestTelemetrySnapshotFromEtcd(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	p1 := models.Platform{ID: "P1", ReferenceURI: "http://p1", Load: 0.2, KeyAvailability: 0.9}
	p10 := models.Platform{ID: "P10", ReferenceURI: "http://p10", Load: 0.7, KeyAvailability: 0.4, Whitelisted: true}
	require.NoError(t, reg.PutPlatform(ctx, p1))
	require.NoError(t, reg.PutPlatform(ctx, p10))

	snapshot, err := reg.GetTelemetrySnapshot(ctx)
	require.NoError(t, err)
	require.Positive(t, snapshot.Revision)
	require.Equal(t, map[models.PlatformID]models.Platform{"P1": p1, "P10": p10}, snapshot.Platforms)
	require.NoError(t, reg.Ping(ctx))
}

func TestElectorResignsOnStop(t *testing.T) {
	clnt := startEtcd(t)
	const key = "/test/optimizer/leader"

	run := func(e *Elector) (context.CancelFunc, <-chan error) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- e.Run(ctx) }()
		return cancel, done
	}
	wait := func(done <-chan error) {
		t.Helper()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("elector did not stop")
		}
	}

	first := NewElector(clnt, key, "node-1", zerolog.Nop())
	stopFirst, firstDone := run(first)
	require.Eventually(t, first.IsLeader, 5*time.Second, 10*time.Millisecond)

	second := NewElector(clnt, key, "node-2", zerolog.Nop())
	stopSecond, secondDone := run(second)
	defer stopSecond()
	time.Sleep(100 * time.Millisecond)
	require.False(t, second.IsLeader())

	stopFirst()
	wait(firstDone)
	require.False(t, first.IsLeader())

	// well inside the lease TTL, so only resignation can hand over
	require.Eventually(t, second.IsLeader, 5*time.Second, 10*time.Millisecond)
	resp, err := clnt.Get(context.Background(), key, clientv3.WithPrefix())
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	require.Equal(t, "node-2", string(resp.Kvs[0].Value))

	stopSecond()
	wait(secondDone)

	resp, err = clnt.Get(context.Background(), key, clientv3.WithPrefix())
	require.NoError(t, err)
	require.Empty(t, resp.Kvs)
	leases, err := clnt.Leases(context.Background())
	require.NoError(t, err)
	require.Empty(t, leases.Leases, "election leases must be revoked")
}
