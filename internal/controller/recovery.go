package controller

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/Sh00ty/mec-orchestrator/internal/keylock"
	"github.com/Sh00ty/mec-orchestrator/internal/metrics"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

// abandoned reports whether context is stuck in migrating state: the
// migration that staged it has crashed or failed to revert.
func (c *Controller) abandoned(appCtx models.AppContext) bool {
	return appCtx.State == models.ContextMigrating &&
		c.now().Sub(appCtx.UpdatedAt) >= c.cfg.MigrationStaleAfter
}

// RecoverAbandonedMigrations puts every abandoned migrating context back on
// its origin platform and returns how many were recovered.
func (c *Controller) RecoverAbandonedMigrations(ctx context.Context) (int, error) {
	contexts, err := c.registry.ListContexts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list contexts: %w", err)
	}
	var (
		recovered int
		errs      error
	)
	for _, appCtx := range contexts {
		if !c.abandoned(appCtx) {
			continue
		}
		ok, err := c.recoverContext(ctx, appCtx.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			recovered++
		}
	}
	return recovered, errs
}

func (c *Controller) recoverContext(ctx context.Context, id models.ContextID) (bool, error) {
	unlock, err := c.locks.Lock(ctx, keylock.ContextKey(id))
	if err != nil {
		return false, err
	}
	defer unlock()

	recovered := false
	err = c.withConflictRetry(ctx, func() error {
		current, err := c.registry.GetContext(ctx, id)
		if errors.Is(err, registry.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !c.abandoned(current) {
			return nil
		}
		if _, err = c.recoverMigration(ctx, current); err != nil {
			return err
		}
		recovered = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to recover context %s: %w", id, registryError(err))
	}
	return recovered, nil
}

// recoverMigration reverts stuck context to active on its origin and tears
// down the deployment possibly left on the migration target. Caller holds
// context lock.
func (c *Controller) recoverMigration(ctx context.Context, stuck models.AppContext) (models.AppContext, error) {
	target := stuck.MigrationTarget
	keys := []string{keylock.PairKey(stuck.PlatformID, stuck.AppDID)}
	if target != "" && target != stuck.PlatformID {
		keys = append(keys, keylock.PairKey(target, stuck.AppDID))
	}
	unlockPairs, err := keylock.LockAll(ctx, c.locks, keys...)
	if err != nil {
		return models.AppContext{}, err
	}
	defer unlockPairs()

	active := stuck
	active.State = models.ContextActive
	active.MigrationTarget = ""
	recovered, err := c.registry.PutContext(ctx, active, stuck.Version)
	if err != nil {
		return models.AppContext{}, err
	}
	c.metrics.Increment(metrics.MigrationRecovered)
	c.log.Warn().Msgf(
		"context %s was stuck migrating from %s to %q since %s, put back on origin",
		stuck.ID, stuck.PlatformID, target, stuck.UpdatedAt,
	)

	if target != "" && target != stuck.PlatformID {
		_ = c.releaseDeployment(context.WithoutCancel(ctx), target, stuck.AppDID)
	}
	return recovered, nil
}
