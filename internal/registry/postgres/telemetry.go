package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/pgerror"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
)

const (
	telemetryTable = "platform_telemetry"
)

// ErrInvalidTelemetry is returned when a row breaks the range checks.
var ErrInvalidTelemetry = pgerror.ErrInvalidTelemetry

const schema = `
create table if not exists platform_telemetry (
	platform_id      text primary key,
	reference_uri    text not null,
	load             double precision not null
		constraint platform_telemetry_load_check check (load between 0 and 1),
	key_availability double precision not null
		constraint platform_telemetry_key_check check (key_availability between 0 and 1),
	blacklisted      boolean not null default false,
	whitelisted      boolean not null default false,
	updated_at       timestamptz not null default now()
);
`

// Telemetry is the read model filled by telemetry ingestion.
type Telemetry struct {
	db *pgxpool.Pool
}

var _ registry.TelemetryReader = (*Telemetry)(nil)

func NewTelemetry(ctx context.Context, user, password, addr string, port uint16, dbname string) (*Telemetry, error) {
	cfg, err := pgxpool.ParseConfig(
		fmt.Sprintf(
			"user=%s password=%s host=%s port=%d dbname=%s sslmode=disable pool_max_conns=15",
			user, password, addr, port, dbname,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Telemetry{
		db: pool,
	}, nil
}

func (t *Telemetry) Migrate(ctx context.Context) error {
	_, err := t.db.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create telemetry table: %w", err)
	}
	return nil
}

func selectPlatformsQuery() (string, []any, error) {
	return squirrel.Select(
		"platform_id",
		"reference_uri",
		"load",
		"key_availability",
		"blacklisted",
		"whitelisted",
	).From(telemetryTable).
		OrderBy("platform_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

func upsertPlatformQuery(p models.Platform) (string, []any, error) {
	return squirrel.Insert(telemetryTable).
		Columns("platform_id", "reference_uri", "load", "key_availability", "blacklisted", "whitelisted").
		Values(p.ID, p.ReferenceURI, p.Load, p.KeyAvailability, p.Blacklisted, p.Whitelisted).
		Suffix(`on conflict (platform_id) do update set
			reference_uri = excluded.reference_uri,
			load = excluded.load,
			key_availability = excluded.key_availability,
			blacklisted = excluded.blacklisted,
			whitelisted = excluded.whitelisted,
			updated_at = now()`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

func (t *Telemetry) GetTelemetrySnapshot(ctx context.Context) (models.TelemetrySnapshot, error) {
	sql, args, err := selectPlatformsQuery()
	if err != nil {
		return models.TelemetrySnapshot{}, fmt.Errorf("failed to create db request: %w", err)
	}

	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return models.TelemetrySnapshot{}, fmt.Errorf("failed to start snapshot transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return models.TelemetrySnapshot{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	snapshot := models.TelemetrySnapshot{Platforms: make(map[models.PlatformID]models.Platform)}
	for rows.Next() {
		p := models.Platform{}
		err = rows.Scan(
			&p.ID,
			&p.ReferenceURI,
			&p.Load,
			&p.KeyAvailability,
			&p.Blacklisted,
			&p.Whitelisted,
		)
		if err != nil {
			return models.TelemetrySnapshot{}, fmt.Errorf("failed to scan platform: %w", err)
		}
		snapshot.Platforms[p.ID] = p
	}
	if err = rows.Err(); err != nil {
		return models.TelemetrySnapshot{}, fmt.Errorf("failed to read platforms: %w", err)
	}
	return snapshot, nil
}

func (t *Telemetry) UpsertPlatform(ctx context.Context, p models.Platform) error {
	sql, args, err := upsertPlatformQuery(p)
	if err != nil {
		return fmt.Errorf("failed to create db request: %w", err)
	}
	_, err = t.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert platform %s: %w", p.ID, pgerror.Translate(err))
	}
	return nil
}

func (t *Telemetry) Ping(ctx context.Context) error {
	return t.db.Ping(ctx)
}

func (t *Telemetry) Close() {
	t.db.Close()
}
