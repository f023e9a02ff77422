package etcd

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

type Registry struct {
	etcd *clientv3.Client
	now  func() time.Time
}

var _ registry.Registry = (*Registry)(nil)

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	clnt, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return clnt, nil
}

func NewRegistry(clnt *clientv3.Client) *Registry {
	return &Registry{
		etcd: clnt,
		now:  time.Now,
	}
}

// GetTelemetrySnapshot reads every platform in one range request, so the
// snapshot belongs to a single revision.
func (r *Registry) GetTelemetrySnapshot(ctx context.Context) (models.TelemetrySnapshot, error) {
	resp, err := r.etcd.Get(ctx, PlatformsPrefix(), clientv3.WithPrefix())
	if err != nil {
		return models.TelemetrySnapshot{}, fmt.Errorf("failed to get platforms: %w", err)
	}
	snapshot := models.TelemetrySnapshot{
		Revision:  resp.Header.Revision,
		Platforms: make(map[models.PlatformID]models.Platform, len(resp.Kvs)),
	}
	for _, kv := range resp.Kvs {
		p, err := decodePlatform(kv)
		if err != nil {
			return models.TelemetrySnapshot{}, err
		}
		snapshot.Platforms[p.ID] = p
	}
	return snapshot, nil
}

func (r *Registry) PutPlatform(ctx context.Context, p models.Platform) error {
	_, err := r.etcd.Put(ctx, platformKey(p.ID), mustJsonMarshal(toPlatformDto(p)))
	if err != nil {
		return fmt.Errorf("failed to put platform %s: %w", p.ID, err)
	}
	return nil
}

func (r *Registry) GetContext(ctx context.Context, id models.ContextID) (models.AppContext, error) {
	resp, err := r.etcd.Get(ctx, contextKey(id))
	if err != nil {
		return models.AppContext{}, fmt.Errorf("failed to get context %s: %w", id, err)
	}
	if len(resp.Kvs) < 1 {
		return models.AppContext{}, registry.ErrNotFound
	}
	return decodeContext(resp.Kvs[0])
}

func (r *Registry) ListContexts(ctx context.Context) ([]models.AppContext, error) {
	return r.listPrefix(ctx, contextsPrefix())
}

func (r *Registry) ListContextsByPlatform(
	ctx context.Context,
	platformID models.PlatformID,
) ([]models.AppContext, error) {
	return r.listPrefix(ctx, platformPlacementsPrefix(platformID))
}

func (r *Registry) ListContextsByPlatformApp(
	ctx context.Context,
	platformID models.PlatformID,
	appDID models.AppDID,
) ([]models.AppContext, error) {
	return r.listPrefix(ctx, pairPlacementsPrefix(platformID, appDID))
}

func (r *Registry) listPrefix(ctx context.Context, prefix string) ([]models.AppContext, error) {
	resp, err := r.etcd.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	result := make([]models.AppContext, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		c, err := decodeContext(kv)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b models.AppContext) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return result, nil
}

func (r *Registry) PutContext(
	ctx context.Context,
	appCtx models.AppContext,
	expectedVersion uint64,
) (models.AppContext, error) {
	var (
		key = contextKey(appCtx.ID)
		now = r.now()
		cmp clientv3.Cmp
		ops = make([]clientv3.Op, 0, 3)
	)
	if expectedVersion == 0 {
		cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		appCtx.CreatedAt = now
	} else {
		stored, err := r.GetContext(ctx, appCtx.ID)
		if err != nil {
			return models.AppContext{}, err
		}
		if stored.Version != expectedVersion {
			return models.AppContext{}, registry.ErrConflict
		}
		cmp = clientv3.Compare(clientv3.ModRevision(key), "=", int64(expectedVersion))
		appCtx.CreatedAt = stored.CreatedAt
		if placementKey(stored) != placementKey(appCtx) {
			ops = append(ops, clientv3.OpDelete(placementKey(stored)))
		}
	}
	appCtx.UpdatedAt = now

	value := mustJsonMarshal(toContextDto(appCtx))
	ops = append(ops,
		clientv3.OpPut(key, value),
		clientv3.OpPut(placementKey(appCtx), value),
	)
	resp, err := r.etcd.Txn(ctx).If(cmp).Then(ops...).Commit()
	if err != nil {
		return models.AppContext{}, fmt.Errorf("failed to put context %s: %w", appCtx.ID, err)
	}
	if !resp.Succeeded {
		return models.AppContext{}, registry.ErrConflict
	}
	appCtx.Version = uint64(resp.Header.Revision)
	return appCtx, nil
}

func (r *Registry) RemoveContext(
	ctx context.Context,
	id models.ContextID,
	expectedVersion uint64,
) (models.AppContext, error) {
	stored, err := r.GetContext(ctx, id)
	if err != nil {
		return models.AppContext{}, err
	}
	if stored.Version != expectedVersion {
		return models.AppContext{}, registry.ErrConflict
	}
	key := contextKey(id)
	resp, err := r.etcd.Txn(ctx).If(
		clientv3.Compare(clientv3.ModRevision(key), "=", int64(expectedVersion)),
	).Then(
		clientv3.OpDelete(key),
		clientv3.OpDelete(placementKey(stored)),
	).Commit()
	if err != nil {
		return models.AppContext{}, fmt.Errorf("failed to remove context %s: %w", id, err)
	}
	if !resp.Succeeded {
		return models.AppContext{}, registry.ErrConflict
	}
	stored.State = models.ContextDeleted
	return stored, nil
}

// Ping is used by readiness probe.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.etcd.Get(ctx, registryFolder, clientv3.WithCountOnly())
	return err
}
