package registry

import (
	"context"
	"errors"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

var (
	ErrNotFound = errors.New("registry: record not found")
	// ErrConflict is returned when expected version doesn't match the stored one.
	ErrConflict = errors.New("registry: version conflict")
)

type TelemetryReader interface {
	// GetTelemetrySnapshot returns a point in time view over all platforms.
	GetTelemetrySnapshot(ctx context.Context) (models.TelemetrySnapshot, error)
}

type ContextStore interface {
	GetContext(ctx context.Context, id models.ContextID) (models.AppContext, error)
	ListContexts(ctx context.Context) ([]models.AppContext, error)
	ListContextsByPlatform(ctx context.Context, platformID models.PlatformID) ([]models.AppContext, error)
	ListContextsByPlatformApp(
		ctx context.Context,
		platformID models.PlatformID,
		appDID models.AppDID,
	) ([]models.AppContext, error)

	// PutContext writes appCtx if stored version equals expectedVersion,
	// zero expectedVersion means record must not exist. Returns the stored
	// record with new version.
	PutContext(ctx context.Context, appCtx models.AppContext, expectedVersion uint64) (models.AppContext, error)
	// RemoveContext deletes record if stored version equals expectedVersion.
	RemoveContext(ctx context.Context, id models.ContextID, expectedVersion uint64) (models.AppContext, error)
}

type Registry interface {
	TelemetryReader
	ContextStore
}

type composed struct {
	TelemetryReader
	ContextStore
}

// Compose joins telemetry read model and context store living in different backends.
func Compose(telemetry TelemetryReader, contexts ContextStore) Registry {
	return composed{
		TelemetryReader: telemetry,
		ContextStore:    contexts,
	}
}

// Live drops deleted contexts.
func Live(contexts []models.AppContext) []models.AppContext {
	out := contexts[:0:0]
	for _, c := range contexts {
		if c.Live() {
			out = append(out, c)
		}
	}
	return out
}
