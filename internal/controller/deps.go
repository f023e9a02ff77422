package controller

import (
	"context"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

type Authorizer interface {
	Authorize(ctx context.Context, appDID models.AppDID, creds models.Credentials) (bool, error)
}

type Deployer interface {
	Deploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) error
	Undeploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) error
}

type Notifier interface {
	NotifyMigration(
		ctx context.Context,
		callbackReference string,
		contextID models.ContextID,
		newReferenceURI string,
	) error
}

type Catalog interface {
	Get(appDID models.AppDID) (models.AppDescriptor, bool)
}

type Selector interface {
	Select(
		snapshot models.TelemetrySnapshot,
		excluding map[models.PlatformID]struct{},
	) (models.Platform, error)
}
