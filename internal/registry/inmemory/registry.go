package inmemory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

const defaultShardCount = 32

type shard struct {
	mu       sync.RWMutex
	contexts map[models.ContextID]models.AppContext
}

// Registry keeps contexts in hash shards each guarded by its own lock and
// platform telemetry in a copy on write map.
type Registry struct {
	shards []*shard

	platformsMu sync.Mutex
	platforms   atomic.Pointer[models.TelemetrySnapshot]

	now func() time.Time
}

var _ registry.Registry = (*Registry)(nil)

func New(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	r := &Registry{
		shards: make([]*shard, shardCount),
		now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{contexts: make(map[models.ContextID]models.AppContext)}
	}
	r.platforms.Store(&models.TelemetrySnapshot{Platforms: map[models.PlatformID]models.Platform{}})
	return r
}

func (r *Registry) shardFor(id models.ContextID) *shard {
	return r.shards[xxhash.Sum64String(string(id))%uint64(len(r.shards))]
}

// SetPlatform is an ingestion hook, it replaces platform telemetry.
func (r *Registry) SetPlatform(p models.Platform) {
	r.platformsMu.Lock()
	defer r.platformsMu.Unlock()

	old := r.platforms.Load()
	next := &models.TelemetrySnapshot{
		Revision:  old.Revision + 1,
		Platforms: maps.Clone(old.Platforms),
	}
	next.Platforms[p.ID] = p
	r.platforms.Store(next)
}

func (r *Registry) RemovePlatform(id models.PlatformID) {
	r.platformsMu.Lock()
	defer r.platformsMu.Unlock()

	old := r.platforms.Load()
	next := &models.TelemetrySnapshot{
		Revision:  old.Revision + 1,
		Platforms: maps.Clone(old.Platforms),
	}
	delete(next.Platforms, id)
	r.platforms.Store(next)
}

func (r *Registry) GetTelemetrySnapshot(ctx context.Context) (models.TelemetrySnapshot, error) {
	snap := r.platforms.Load()
	// stored maps are never mutated, clone only to hand out ownership
	return models.TelemetrySnapshot{
		Revision:  snap.Revision,
		Platforms: maps.Clone(snap.Platforms),
	}, nil
}

func (r *Registry) GetContext(ctx context.Context, id models.ContextID) (models.AppContext, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	c, ok := sh.contexts[id]
	if !ok {
		return models.AppContext{}, registry.ErrNotFound
	}
	return c, nil
}

func (r *Registry) ListContexts(ctx context.Context) ([]models.AppContext, error) {
	return r.list(func(models.AppContext) bool { return true }), nil
}

func (r *Registry) ListContextsByPlatform(
	ctx context.Context,
	platformID models.PlatformID,
) ([]models.AppContext, error) {
	return r.list(func(c models.AppContext) bool {
		return c.PlatformID == platformID
	}), nil
}

func (r *Registry) ListContextsByPlatformApp(
	ctx context.Context,
	platformID models.PlatformID,
	appDID models.AppDID,
) ([]models.AppContext, error) {
	return r.list(func(c models.AppContext) bool {
		return c.PlatformID == platformID && c.AppDID == appDID
	}), nil
}

func (r *Registry) list(match func(models.AppContext) bool) []models.AppContext {
	result := make([]models.AppContext, 0)
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, c := range sh.contexts {
			if match(c) {
				result = append(result, c)
			}
		}
		sh.mu.RUnlock()
	}
	slices.SortFunc(result, func(a, b models.AppContext) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return result
}

func (r *Registry) PutContext(
	ctx context.Context,
	appCtx models.AppContext,
	expectedVersion uint64,
) (models.AppContext, error) {
	sh := r.shardFor(appCtx.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stored, exists := sh.contexts[appCtx.ID]
	switch {
	case !exists && expectedVersion != 0:
		return models.AppContext{}, registry.ErrNotFound
	case exists && stored.Version != expectedVersion:
		return models.AppContext{}, registry.ErrConflict
	}

	now := r.now()
	if !exists {
		appCtx.CreatedAt = now
	} else {
		appCtx.CreatedAt = stored.CreatedAt
	}
	appCtx.UpdatedAt = now
	appCtx.Version = expectedVersion + 1
	sh.contexts[appCtx.ID] = appCtx
	return appCtx, nil
}

func (r *Registry) RemoveContext(
	ctx context.Context,
	id models.ContextID,
	expectedVersion uint64,
) (models.AppContext, error) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stored, exists := sh.contexts[id]
	if !exists {
		return models.AppContext{}, registry.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return models.AppContext{}, registry.ErrConflict
	}
	delete(sh.contexts, id)
	stored.State = models.ContextDeleted
	return stored, nil
}
