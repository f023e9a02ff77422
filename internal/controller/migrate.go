package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/Sh00ty/mec-orchestrator/internal/keylock"
	"github.com/Sh00ty/mec-orchestrator/internal/metrics"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

// Migrate moves an active context onto target. On any failure the context
// stays active on its origin platform.
func (c *Controller) Migrate(
	ctx context.Context,
	id models.ContextID,
	target models.Platform,
) (models.AppContext, error) {
	start := time.Now()
	defer func() {
		c.metrics.Duration(metrics.MigrateLatency, time.Since(start))
	}()

	moved, err := c.migrate(ctx, id, target)
	if err != nil {
		c.metrics.Increment(metrics.MigrationFailed)
		c.log.Warn().Err(err).Msgf("failed to migrate context %s to %s", id, target.ID)
		return models.AppContext{}, err
	}
	c.metrics.Increment(metrics.ContextMigrated)
	c.log.Info().Msgf("context %s migrated to %s", id, target.ID)

	// locks are released, notification may block for a while
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.NotifyTimeout)
	defer cancel()
	if c.notifier != nil {
		err = c.notifier.NotifyMigration(notifyCtx, moved.CallbackReference, moved.ID, target.ReferenceURI)
		if err != nil {
			c.metrics.Increment(metrics.NotificationFailed)
			c.log.Error().Err(err).Msgf("failed to notify about migration of %s", id)
		}
	}
	return moved, nil
}

func (c *Controller) migrate(
	ctx context.Context,
	id models.ContextID,
	target models.Platform,
) (models.AppContext, error) {
	unlock, err := c.locks.Lock(ctx, keylock.ContextKey(id))
	if err != nil {
		return models.AppContext{}, err
	}
	defer unlock()

	var staged models.AppContext
	err = c.withConflictRetry(ctx, func() error {
		current, err := c.registry.GetContext(ctx, id)
		if err != nil {
			return err
		}
		if !current.Live() {
			return registry.ErrNotFound
		}
		if c.abandoned(current) {
			current, err = c.recoverMigration(ctx, current)
			if err != nil {
				return err
			}
		}
		if current.State != models.ContextActive {
			return fmt.Errorf("context %s is %s: %w", id, current.State, registry.ErrConflict)
		}
		if current.PlatformID == target.ID {
			return fmt.Errorf("%w: context %s already runs on %s", models.ErrValidation, id, target.ID)
		}
		current.State = models.ContextMigrating
		current.MigrationTarget = target.ID
		staged, err = c.registry.PutContext(ctx, current, current.Version)
		return err
	})
	if err != nil {
		return models.AppContext{}, fmt.Errorf("failed to start migration of %s: %w", id, registryError(err))
	}
	origin := staged.PlatformID

	unlockPairs, err := keylock.LockAll(
		ctx,
		c.locks,
		keylock.PairKey(origin, staged.AppDID),
		keylock.PairKey(target.ID, staged.AppDID),
	)
	if err != nil {
		c.revert(ctx, staged)
		return models.AppContext{}, err
	}
	defer unlockPairs()

	deployed, err := c.ensureDeployed(ctx, target.ID, staged.AppDID)
	if err != nil {
		c.revert(ctx, staged)
		return models.AppContext{}, err
	}

	next := staged
	next.PlatformID = target.ID
	next.State = models.ContextActive
	next.MigrationTarget = ""
	moved, err := c.registry.PutContext(ctx, next, staged.Version)
	if err != nil {
		if deployed {
			c.compensateDeploy(ctx, target.ID, staged.AppDID)
		}
		c.revert(ctx, staged)
		return models.AppContext{}, fmt.Errorf("failed to commit migration of %s: %w", id, registryError(err))
	}

	// commit is done, origin teardown failures are only reported
	_ = c.releaseDeployment(context.WithoutCancel(ctx), origin, staged.AppDID)
	return moved, nil
}

// revert returns staged context to active state on its origin platform.
// A failed revert is picked up later by migration recovery.
func (c *Controller) revert(ctx context.Context, staged models.AppContext) {
	ctx = context.WithoutCancel(ctx)

	active := staged
	active.State = models.ContextActive
	active.MigrationTarget = ""
	_, err := c.registry.PutContext(ctx, active, staged.Version)
	if err != nil {
		c.log.Error().Err(err).Msgf("failed to revert context %s to active on %s", staged.ID, staged.PlatformID)
	}
}
