package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sh00ty/mec-orchestrator/internal/keylock"
	"github.com/Sh00ty/mec-orchestrator/internal/metrics"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

// DeleteContext removes the context and tears deployment down when it was
// the last one of its (platform, app) pair. Undeploy failures are logged and
// counted but do not fail the call: the context is gone at that point.
func (c *Controller) DeleteContext(ctx context.Context, id models.ContextID) error {
	start := time.Now()
	defer func() {
		c.metrics.Duration(metrics.DeleteLatency, time.Since(start))
	}()

	if id == "" {
		return fmt.Errorf("%w: contextId is required", models.ErrValidation)
	}

	unlock, err := c.locks.Lock(ctx, keylock.ContextKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	var (
		removed    models.AppContext
		unlockPair func()
	)
	err = c.withConflictRetry(ctx, func() error {
		current, err := c.registry.GetContext(ctx, id)
		if err != nil {
			return err
		}
		if !current.Live() {
			return registry.ErrNotFound
		}
		if current.State == models.ContextMigrating {
			if !c.abandoned(current) {
				return fmt.Errorf("context %s is migrating: %w", id, registry.ErrConflict)
			}
			current, err = c.recoverMigration(ctx, current)
			if err != nil {
				return err
			}
		}

		pairUnlock, err := c.locks.Lock(ctx, keylock.PairKey(current.PlatformID, current.AppDID))
		if err != nil {
			return err
		}
		removed, err = c.registry.RemoveContext(ctx, id, current.Version)
		if err != nil {
			pairUnlock()
			return err
		}
		unlockPair = pairUnlock
		return nil
	})
	if err != nil {
		err = registryError(err)
		if !errors.Is(err, models.ErrNotFound) {
			c.log.Warn().Err(err).Msgf("failed to delete context %s", id)
		}
		return fmt.Errorf("failed to delete context %s: %w", id, err)
	}
	defer unlockPair()

	c.metrics.Increment(metrics.ContextDeleted)
	c.log.Info().Msgf("context %s of %s removed from %s", id, removed.AppDID, removed.PlatformID)

	// deletion already committed, teardown must finish even if caller is gone
	_ = c.releaseDeployment(context.WithoutCancel(ctx), removed.PlatformID, removed.AppDID)
	return nil
}
