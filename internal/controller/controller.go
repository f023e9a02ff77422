package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog"

	"github.com/Sh00ty/mec-orchestrator/internal/keylock"
	"github.com/Sh00ty/mec-orchestrator/internal/metrics"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

type Config struct {
	// zero means unlimited
	MaxContexts            int
	MaxContextsPerPlatform int

	AuthorizeTimeout time.Duration
	DeployTimeout    time.Duration
	UndeployTimeout  time.Duration
	NotifyTimeout    time.Duration

	ConflictRetries    uint
	ConflictRetryDelay time.Duration

	// a context migrating for longer is treated as abandoned by a crashed
	// or failed migration and put back on its origin platform
	MigrationStaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.AuthorizeTimeout == 0 {
		c.AuthorizeTimeout = 2 * time.Second
	}
	if c.DeployTimeout == 0 {
		c.DeployTimeout = 30 * time.Second
	}
	if c.UndeployTimeout == 0 {
		c.UndeployTimeout = 30 * time.Second
	}
	if c.NotifyTimeout == 0 {
		c.NotifyTimeout = 5 * time.Second
	}
	if c.ConflictRetries == 0 {
		c.ConflictRetries = 5
	}
	if c.ConflictRetryDelay == 0 {
		c.ConflictRetryDelay = 10 * time.Millisecond
	}
	if c.MigrationStaleAfter == 0 {
		c.MigrationStaleAfter = 2 * (c.DeployTimeout + c.UndeployTimeout)
	}
	return c
}

type Deps struct {
	Registry   registry.Registry
	Selector   Selector
	Authorizer Authorizer
	Deployer   Deployer
	Notifier   Notifier
	Catalog    Catalog
	Locker     keylock.Locker
	Metrics    metrics.Metrics
}

// ContextInfo is a context with reference uri of the platform hosting it.
type ContextInfo struct {
	models.AppContext
	ReferenceURI string
}

type Controller struct {
	registry   registry.Registry
	selector   Selector
	authorizer Authorizer
	deployer   Deployer
	notifier   Notifier
	catalog    Catalog
	locks      keylock.Locker
	metrics    metrics.Metrics

	cfg   Config
	newID func() (models.ContextID, error)
	now   func() time.Time

	log zerolog.Logger
}

func New(deps Deps, cfg Config, logger zerolog.Logger) *Controller {
	if deps.Locker == nil {
		deps.Locker = keylock.NewLocal()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Controller{
		registry:   deps.Registry,
		selector:   deps.Selector,
		authorizer: deps.Authorizer,
		deployer:   deps.Deployer,
		notifier:   deps.Notifier,
		catalog:    deps.Catalog,
		locks:      deps.Locker,
		metrics:    deps.Metrics,
		cfg:        cfg.withDefaults(),
		newID:      newContextID,
		now:        time.Now,

		log: logger.With().Str("component", "controller").Logger(),
	}
}

func newContextID() (models.ContextID, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate context id: %w", err)
	}
	return models.ContextID(id), nil
}

func (c *Controller) GetContext(ctx context.Context, id models.ContextID) (ContextInfo, error) {
	appCtx, err := c.registry.GetContext(ctx, id)
	if err != nil {
		return ContextInfo{}, registryError(err)
	}
	if !appCtx.Live() {
		return ContextInfo{}, models.ErrNotFound
	}
	snapshot, err := c.registry.GetTelemetrySnapshot(ctx)
	if err != nil {
		return ContextInfo{}, fmt.Errorf("failed to read telemetry: %w", err)
	}
	return withReference(appCtx, snapshot), nil
}

func (c *Controller) ListContexts(ctx context.Context) ([]ContextInfo, error) {
	contexts, err := c.registry.ListContexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	snapshot, err := c.registry.GetTelemetrySnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry: %w", err)
	}
	result := make([]ContextInfo, 0, len(contexts))
	for _, appCtx := range registry.Live(contexts) {
		result = append(result, withReference(appCtx, snapshot))
	}
	c.metrics.Gauge(metrics.ActiveContexts, len(result))
	return result, nil
}

// UpdateCallbackReference is the only client side mutation of a context.
func (c *Controller) UpdateCallbackReference(
	ctx context.Context,
	id models.ContextID,
	callbackReference string,
) (models.AppContext, error) {
	if err := validateCallback(callbackReference); err != nil {
		return models.AppContext{}, err
	}
	unlock, err := c.locks.Lock(ctx, keylock.ContextKey(id))
	if err != nil {
		return models.AppContext{}, err
	}
	defer unlock()

	var updated models.AppContext
	err = c.withConflictRetry(ctx, func() error {
		current, err := c.registry.GetContext(ctx, id)
		if err != nil {
			return err
		}
		if !current.Live() {
			return registry.ErrNotFound
		}
		current.CallbackReference = callbackReference
		updated, err = c.registry.PutContext(ctx, current, current.Version)
		return err
	})
	if err != nil {
		return models.AppContext{}, fmt.Errorf("failed to update context %s: %w", id, registryError(err))
	}
	return updated, nil
}

func withReference(appCtx models.AppContext, snapshot models.TelemetrySnapshot) ContextInfo {
	info := ContextInfo{AppContext: appCtx}
	if p, ok := snapshot.Get(appCtx.PlatformID); ok {
		info.ReferenceURI = p.ReferenceURI
	}
	return info
}

func (c *Controller) withConflictRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.cfg.ConflictRetries),
		retry.Delay(c.cfg.ConflictRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, registry.ErrConflict)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.metrics.Increment(metrics.RegistryConflict)
			c.log.Debug().Err(err).Msgf("registry conflict, attempt %d", n+1)
		}),
	)
}

// registryError maps registry errors onto the orchestrator taxonomy.
func registryError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return fmt.Errorf("%w: %w", models.ErrNotFound, err)
	case errors.Is(err, registry.ErrConflict):
		return fmt.Errorf("%w: %w", models.ErrRegistryConflict, err)
	}
	return err
}

// stepError marks collaborator failure with the kind of the failing step,
// timeouts stay matchable with context.DeadlineExceeded.
func stepError(kind error, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

func validateCallback(callbackReference string) error {
	if callbackReference == "" {
		return nil
	}
	u, err := url.Parse(callbackReference)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: callbackReference %q is not an absolute uri", models.ErrValidation, callbackReference)
	}
	return nil
}
