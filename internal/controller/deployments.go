package controller

import (
	"context"
	"fmt"

	"github.com/Sh00ty/mec-orchestrator/internal/metrics"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

// Deployment markers are derived from live contexts. Every function here
// must be called while holding pair lock of (platformID, appDID).

func (c *Controller) deployed(
	ctx context.Context,
	platformID models.PlatformID,
	appDID models.AppDID,
) (bool, error) {
	contexts, err := c.registry.ListContextsByPlatformApp(ctx, platformID, appDID)
	if err != nil {
		return false, fmt.Errorf("failed to read deployment marker of %s on %s: %w", appDID, platformID, err)
	}
	return len(registry.Live(contexts)) > 0, nil
}

// ensureDeployed deploys app unless marker is already present. Reports
// whether deploy was performed by this call.
func (c *Controller) ensureDeployed(
	ctx context.Context,
	platformID models.PlatformID,
	appDID models.AppDID,
) (bool, error) {
	present, err := c.deployed(ctx, platformID, appDID)
	if err != nil {
		return false, err
	}
	if present {
		return false, nil
	}

	deployCtx, cancel := context.WithTimeout(ctx, c.cfg.DeployTimeout)
	defer cancel()

	err = c.deployer.Deploy(deployCtx, platformID, appDID)
	if err != nil {
		return false, stepError(
			models.ErrDeployFailure,
			fmt.Errorf("failed to deploy %s on %s: %w", appDID, platformID, err),
		)
	}
	c.metrics.Increment(metrics.Deployed)
	c.log.Info().Msgf("deployed %s on %s", appDID, platformID)
	return true, nil
}

// releaseDeployment undeploys app once no live context references the pair.
func (c *Controller) releaseDeployment(
	ctx context.Context,
	platformID models.PlatformID,
	appDID models.AppDID,
) error {
	present, err := c.deployed(ctx, platformID, appDID)
	if err != nil {
		c.log.Error().Err(err).Msg("undeploy skipped")
		return stepError(models.ErrUndeployFailure, err)
	}
	if present {
		return nil
	}
	return c.undeploy(ctx, platformID, appDID)
}

func (c *Controller) undeploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) error {
	undeployCtx, cancel := context.WithTimeout(ctx, c.cfg.UndeployTimeout)
	defer cancel()

	err := c.deployer.Undeploy(undeployCtx, platformID, appDID)
	if err != nil {
		c.metrics.Increment(metrics.UndeployFailed)
		c.log.Error().Err(err).Msgf("failed to undeploy %s from %s", appDID, platformID)
		return stepError(
			models.ErrUndeployFailure,
			fmt.Errorf("failed to undeploy %s from %s: %w", appDID, platformID, err),
		)
	}
	c.metrics.Increment(metrics.Undeployed)
	c.log.Info().Msgf("undeployed %s from %s", appDID, platformID)
	return nil
}

// compensateDeploy rolls back deploy whose registry write didn't happen.
// Runs even if caller went away.
func (c *Controller) compensateDeploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) {
	ctx = context.WithoutCancel(ctx)
	if err := c.releaseDeployment(ctx, platformID, appDID); err != nil {
		c.log.Error().Err(err).Msgf("orphan deployment of %s on %s left after rollback", appDID, platformID)
	}
}
