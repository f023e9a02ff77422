package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

func createOn(t *testing.T, h *harness, app models.AppDID) models.Placement {
	t.Helper()
	placement, err := h.ctrl.CreateContext(context.Background(), app, "http://client/cb", models.Credentials{})
	require.NoError(t, err)
	return placement
}

func TestMigrateMovesContext(t *testing.T) {
	h := newHarness(t, Config{}, nil, p2)
	ctx := context.Background()
	placement := createOn(t, h, "my_app_1")
	h.reg.SetPlatform(p3)

	moved, err := h.ctrl.Migrate(ctx, placement.ContextID, p3)
	require.NoError(t, err)
	require.Equal(t, models.PlatformID("P3"), moved.PlatformID)
	require.Equal(t, models.ContextActive, moved.State)
	require.Equal(t, placement.ContextID, moved.ID)

	require.Empty(t, h.contextsOn(t, "P2", "my_app_1"))
	require.Len(t, h.contextsOn(t, "P3", "my_app_1"), 1)

	deploys, _ := h.deployer.counts("P3", "my_app_1")
	require.Equal(t, 1, deploys)
	_, undeploys := h.deployer.counts("P2", "my_app_1")
	require.Equal(t, 1, undeploys)

	require.Equal(t, []notification{{
		callback:     "http://client/cb",
		contextID:    placement.ContextID,
		referenceURI: p3.ReferenceURI,
	}}, h.notifier.sent)

	info, err := h.ctrl.GetContext(ctx, placement.ContextID)
	require.NoError(t, err)
	require.Equal(t, p3.ReferenceURI, info.ReferenceURI)
}

func TestMigrateKeepsSharedOriginDeployment(t *testing.T) {
	h := newHarness(t, Config{}, nil, p2)
	first := createOn(t, h, "my_app_1")
	createOn(t, h, "my_app_1")
	h.reg.SetPlatform(p3)

	_, err := h.ctrl.Migrate(context.Background(), first.ContextID, p3)
	require.NoError(t, err)

	require.Len(t, h.contextsOn(t, "P2", "my_app_1"), 1)
	require.Len(t, h.contextsOn(t, "P3", "my_app_1"), 1)
	_, undeploys := h.deployer.counts("P2", "my_app_1")
	require.Zero(t, undeploys)
}

func TestMigrateReusesTargetDeployment(t *testing.T) {
	h := newHarness(t, Config{MaxContextsPerPlatform: 1}, nil, p2, p3)
	first := createOn(t, h, "my_app_1")
	second := createOn(t, h, "my_app_1")
	require.NotEqual(t, first.ReferenceURI, second.ReferenceURI)

	firstCtx, err := h.ctrl.GetContext(context.Background(), first.ContextID)
	require.NoError(t, err)
	target := p3
	if firstCtx.PlatformID == "P3" {
		target = p2
	}

	_, err = h.ctrl.Migrate(context.Background(), first.ContextID, target)
	require.NoError(t, err)
	deploys, _ := h.deployer.counts(target.ID, "my_app_1")
	require.Equal(t, 1, deploys)
}

func TestMigrateDeployFailureReverts(t *testing.T) {
	h := newHarness(t, Config{}, nil, p2)
	ctx := context.Background()
	placement := createOn(t, h, "my_app_1")
	h.deployer.deployErr["P3"] = errors.New("no capacity")

	_, err := h.ctrl.Migrate(ctx, placement.ContextID, p3)
	require.ErrorIs(t, err, models.ErrDeployFailure)

	stored, err := h.reg.GetContext(ctx, placement.ContextID)
	require.NoError(t, err)
	require.Equal(t, models.ContextActive, stored.State)
	require.Equal(t, models.PlatformID("P2"), stored.PlatformID)

	_, undeploys := h.deployer.counts("P2", "my_app_1")
	require.Zero(t, undeploys)
	require.Empty(t, h.notifier.sent)
}

func TestMigrateValidation(t *testing.T) {
	h := newHarness(t, Config{ConflictRetries: 2}, nil, p2)
	ctx := context.Background()
	placement := createOn(t, h, "my_app_1")

	_, err := h.ctrl.Migrate(ctx, placement.ContextID, p2)
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = h.ctrl.Migrate(ctx, "missing", p3)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestNotificationFailureDoesNotFailMigration(t *testing.T) {
	h := newHarness(t, Config{}, nil, p2)
	placement := createOn(t, h, "my_app_1")
	h.notifier.err = errors.New("front door unavailable")

	moved, err := h.ctrl.Migrate(context.Background(), placement.ContextID, p3)
	require.NoError(t, err)
	require.Equal(t, models.PlatformID("P3"), moved.PlatformID)
}

func TestDeleteRacingMigrateKeepsMarkersConsistent(t *testing.T) {
	for range 20 {
		h := newHarness(t, Config{}, nil, p2)
		ctx := context.Background()
		placement := createOn(t, h, "my_app_1")

		var (
			wg         sync.WaitGroup
			migrateErr error
			deleteErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, migrateErr = h.ctrl.Migrate(ctx, placement.ContextID, p3)
		}()
		go func() {
			defer wg.Done()
			deleteErr = h.ctrl.DeleteContext(ctx, placement.ContextID)
		}()
		wg.Wait()

		require.NoError(t, deleteErr)
		if migrateErr != nil {
			require.ErrorIs(t, migrateErr, models.ErrNotFound)
		}

		_, err := h.ctrl.GetContext(ctx, placement.ContextID)
		require.ErrorIs(t, err, models.ErrNotFound)
		for _, platform := range []models.PlatformID{"P2", "P3"} {
			deploys, undeploys := h.deployer.counts(platform, "my_app_1")
			require.Equal(t, deploys, undeploys, "platform %s must have no orphan deployment", platform)
		}
	}
}
