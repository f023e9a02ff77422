package optimizer

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sh00ty/mec-orchestrator/internal/metrics"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/selector"
)

type Registry interface {
	GetTelemetrySnapshot(ctx context.Context) (models.TelemetrySnapshot, error)
	ListContextsByPlatform(ctx context.Context, platformID models.PlatformID) ([]models.AppContext, error)
}

type Selector interface {
	Select(
		snapshot models.TelemetrySnapshot,
		excluding map[models.PlatformID]struct{},
	) (models.Platform, error)
	Constraints() selector.Constraints
}

type Migrator interface {
	Migrate(ctx context.Context, id models.ContextID, target models.Platform) (models.AppContext, error)
}

// Recoverer is implemented by migrators able to clean up migrations that
// never finished. Passes run it before looking at telemetry.
type Recoverer interface {
	RecoverAbandonedMigrations(ctx context.Context) (int, error)
}

type Config struct {
	Interval     time.Duration
	VictimPolicy VictimPolicy
	// zero means unlimited
	MigrationsPerSecond float64
	MigrationBurst      int
}

type PassReport struct {
	Violating []models.PlatformID
	// violating platforms whose contexts have nowhere to go
	Overloaded []models.PlatformID

	Attempted int
	Migrated  int
	Failed    int
	// abandoned migrations put back on origin
	Recovered int
}

type Optimizer struct {
	registry Registry
	selector Selector
	migrator Migrator
	metrics  metrics.Metrics

	cfg     Config
	limiter *rate.Limiter
	trigger chan struct{}
	// nil means this instance always runs passes
	isLeader func() bool

	log zerolog.Logger
}

func New(
	reg Registry,
	sel Selector,
	migrator Migrator,
	m metrics.Metrics,
	cfg Config,
	logger zerolog.Logger,
) *Optimizer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.VictimPolicy == "" {
		cfg.VictimPolicy = VictimOne
	}
	limit := rate.Inf
	if cfg.MigrationsPerSecond > 0 {
		limit = rate.Limit(cfg.MigrationsPerSecond)
	}
	if cfg.MigrationBurst <= 0 {
		cfg.MigrationBurst = 1
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Optimizer{
		registry: reg,
		selector: sel,
		migrator: migrator,
		metrics:  m,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.MigrationBurst),
		trigger:  make(chan struct{}, 1),

		log: logger.With().Str("component", "optimizer").Logger(),
	}
}

// WithLeadership makes passes conditional on isLeader.
func (o *Optimizer) WithLeadership(isLeader func() bool) *Optimizer {
	o.isLeader = isLeader
	return o
}

// Trigger asks for an extra pass, triggers are coalesced.
func (o *Optimizer) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

func (o *Optimizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	o.log.Info().Msgf("optimizer started with interval %s and %s victim policy", o.cfg.Interval, o.cfg.VictimPolicy)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.runIfLeader(ctx)
		case <-o.trigger:
			o.runIfLeader(ctx)
		}
	}
}

func (o *Optimizer) runIfLeader(ctx context.Context) {
	if o.isLeader != nil && !o.isLeader() {
		o.log.Debug().Msg("not a leader, skipping pass")
		return
	}
	report := o.RunPass(ctx)
	if len(report.Violating) > 0 || report.Recovered > 0 {
		o.log.Info().Msgf(
			"pass done: violating=%v overloaded=%v attempted=%d migrated=%d failed=%d recovered=%d",
			report.Violating, report.Overloaded, report.Attempted, report.Migrated, report.Failed, report.Recovered,
		)
	}
}

// RunPass checks every platform once. Failures are isolated per platform and
// per context.
func (o *Optimizer) RunPass(ctx context.Context) PassReport {
	start := time.Now()
	defer func() {
		o.metrics.Duration(metrics.OptimizerPass, time.Since(start))
	}()

	report := PassReport{}
	if recoverer, ok := o.migrator.(Recoverer); ok {
		n, err := recoverer.RecoverAbandonedMigrations(ctx)
		if err != nil {
			o.log.Error().Err(err).Msg("failed to recover abandoned migrations")
		}
		report.Recovered = n
	}
	snapshot, err := o.registry.GetTelemetrySnapshot(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("failed to read telemetry snapshot")
		return report
	}
	constraints := o.selector.Constraints()

	ids := make([]models.PlatformID, 0, len(snapshot.Platforms))
	for id := range snapshot.Platforms {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b models.PlatformID) int {
		return strings.Compare(string(a), string(b))
	})

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		platform := snapshot.Platforms[id]
		if !constraints.Violates(platform) {
			continue
		}
		report.Violating = append(report.Violating, id)
		o.relieve(ctx, snapshot, constraints, platform, &report)
	}
	o.metrics.Gauge(metrics.ViolatingPlatforms, len(report.Violating))
	return report
}

func (o *Optimizer) relieve(
	ctx context.Context,
	snapshot models.TelemetrySnapshot,
	constraints selector.Constraints,
	platform models.Platform,
	report *PassReport,
) {
	contexts, err := o.registry.ListContextsByPlatform(ctx, platform.ID)
	if err != nil {
		o.log.Error().Err(err).Msgf("failed to list contexts of %s", platform.ID)
		return
	}
	active := make([]models.AppContext, 0, len(contexts))
	for _, c := range contexts {
		if c.State == models.ContextActive {
			active = append(active, c)
		}
	}
	slices.SortStableFunc(active, func(a, b models.AppContext) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	excluding := selector.IDSet(platform.ID)
	for _, victim := range victims(o.cfg.VictimPolicy, constraints, platform, active) {
		target, err := o.selector.Select(snapshot, excluding)
		if errors.Is(err, models.ErrNoCandidatePlatform) {
			report.Overloaded = append(report.Overloaded, platform.ID)
			o.metrics.Increment(metrics.PlatformOverloaded)
			o.log.Warn().Msgf(
				"platform %s is overloaded (load=%.2f key=%.2f) and has no candidate for %d contexts",
				platform.ID, platform.Load, platform.KeyAvailability, len(active),
			)
			return
		}
		if err != nil {
			o.log.Error().Err(err).Msgf("failed to select target for %s", victim.ID)
			continue
		}
		if err = o.limiter.Wait(ctx); err != nil {
			return
		}

		report.Attempted++
		_, err = o.migrator.Migrate(ctx, victim.ID, target)
		if err != nil {
			report.Failed++
			o.log.Error().Err(err).Msgf("migration of %s from %s to %s aborted", victim.ID, platform.ID, target.ID)
			continue
		}
		report.Migrated++
	}
}
