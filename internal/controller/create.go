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

// CreateContext places a new context of appDID and returns where the client
// should connect. Nothing is written on any failure.
func (c *Controller) CreateContext(
	ctx context.Context,
	appDID models.AppDID,
	callbackReference string,
	creds models.Credentials,
) (models.Placement, error) {
	start := time.Now()
	defer func() {
		c.metrics.Duration(metrics.CreateLatency, time.Since(start))
	}()

	placement, err := c.create(ctx, appDID, callbackReference, creds)
	if err != nil {
		if errors.Is(err, models.ErrNoCandidatePlatform) || errors.Is(err, models.ErrContextLimit) {
			c.metrics.Increment(metrics.ContextRejected)
		} else {
			c.metrics.Increment(metrics.ContextCreateFailed)
		}
		c.log.Warn().Err(err).Msgf("failed to create context for %s", appDID)
		return models.Placement{}, err
	}
	c.metrics.Increment(metrics.ContextCreated)
	c.log.Info().Msgf("context %s for %s placed with uri %s", placement.ContextID, appDID, placement.ReferenceURI)
	return placement, nil
}

func (c *Controller) create(
	ctx context.Context,
	appDID models.AppDID,
	callbackReference string,
	creds models.Credentials,
) (models.Placement, error) {
	if err := c.validateCreate(appDID, callbackReference); err != nil {
		return models.Placement{}, err
	}
	if err := c.authorize(ctx, appDID, creds); err != nil {
		return models.Placement{}, err
	}

	excluding, err := c.saturatedPlatforms(ctx)
	if err != nil {
		return models.Placement{}, err
	}
	snapshot, err := c.registry.GetTelemetrySnapshot(ctx)
	if err != nil {
		return models.Placement{}, fmt.Errorf("failed to read telemetry: %w", err)
	}
	platform, err := c.selector.Select(snapshot, excluding)
	if err != nil {
		return models.Placement{}, fmt.Errorf("failed to place %s: %w", appDID, err)
	}

	id, err := c.newID()
	if err != nil {
		return models.Placement{}, err
	}

	unlock, err := c.locks.Lock(ctx, keylock.PairKey(platform.ID, appDID))
	if err != nil {
		return models.Placement{}, err
	}
	defer unlock()

	deployed, err := c.ensureDeployed(ctx, platform.ID, appDID)
	if err != nil {
		return models.Placement{}, err
	}

	// abandoned requests must not leave a context behind
	if err = ctx.Err(); err != nil {
		if deployed {
			c.compensateDeploy(ctx, platform.ID, appDID)
		}
		return models.Placement{}, err
	}
	_, err = c.registry.PutContext(ctx, models.AppContext{
		ID:                id,
		AppDID:            appDID,
		PlatformID:        platform.ID,
		CallbackReference: callbackReference,
		State:             models.ContextActive,
	}, 0)
	if err != nil {
		if deployed {
			c.compensateDeploy(ctx, platform.ID, appDID)
		}
		return models.Placement{}, fmt.Errorf("failed to store context %s: %w", id, registryError(err))
	}

	return models.Placement{
		ContextID:    id,
		ReferenceURI: platform.ReferenceURI,
	}, nil
}

func (c *Controller) validateCreate(appDID models.AppDID, callbackReference string) error {
	if appDID == "" {
		return fmt.Errorf("%w: appDId is required", models.ErrValidation)
	}
	if c.catalog != nil {
		if _, ok := c.catalog.Get(appDID); !ok {
			return fmt.Errorf("%w: unknown application %s", models.ErrValidation, appDID)
		}
	}
	return validateCallback(callbackReference)
}

func (c *Controller) authorize(ctx context.Context, appDID models.AppDID, creds models.Credentials) error {
	if c.authorizer == nil {
		return nil
	}
	authCtx, cancel := context.WithTimeout(ctx, c.cfg.AuthorizeTimeout)
	defer cancel()

	allowed, err := c.authorizer.Authorize(authCtx, appDID, creds)
	if err != nil {
		return stepError(models.ErrAuthDenied, fmt.Errorf("authorization of %s failed: %w", appDID, err))
	}
	if !allowed {
		return fmt.Errorf("%w: caller %q may not use %s", models.ErrAuthDenied, creds.Subject, appDID)
	}
	return nil
}

// saturatedPlatforms enforces context caps. Caps are checked against the
// registry at decision time and may be overrun by racing creates.
func (c *Controller) saturatedPlatforms(ctx context.Context) (map[models.PlatformID]struct{}, error) {
	if c.cfg.MaxContexts <= 0 && c.cfg.MaxContextsPerPlatform <= 0 {
		return nil, nil
	}
	contexts, err := c.registry.ListContexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	contexts = registry.Live(contexts)
	if c.cfg.MaxContexts > 0 && len(contexts) >= c.cfg.MaxContexts {
		return nil, fmt.Errorf("%w: %d", models.ErrContextLimit, c.cfg.MaxContexts)
	}
	if c.cfg.MaxContextsPerPlatform <= 0 {
		return nil, nil
	}

	perPlatform := make(map[models.PlatformID]int)
	for _, appCtx := range contexts {
		perPlatform[appCtx.PlatformID]++
	}
	excluding := make(map[models.PlatformID]struct{})
	for id, count := range perPlatform {
		if count >= c.cfg.MaxContextsPerPlatform {
			excluding[id] = struct{}{}
		}
	}
	return excluding, nil
}
