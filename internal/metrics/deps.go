package metrics

import "time"

type Metrics interface {
	Increment(string)
	Duration(string, time.Duration)
	Gauge(string, int)
}

const (
	ContextCreated       = "contexts.created"
	ContextCreateFailed  = "contexts.create_failed"
	ContextDeleted       = "contexts.deleted"
	ContextRejected      = "contexts.rejected"
	ContextMigrated      = "contexts.migrated"
	MigrationFailed      = "contexts.migration_failed"
	MigrationRecovered   = "contexts.migration_recovered"
	Deployed             = "deployments.deployed"
	Undeployed           = "deployments.undeployed"
	UndeployFailed       = "deployments.undeploy_failed"
	RegistryConflict     = "registry.conflicts"
	NotificationFailed   = "notifications.failed"
	PlatformOverloaded   = "optimizer.overloaded"
	OptimizerPass        = "optimizer.pass"
	ActiveContexts       = "contexts.active"
	CreateLatency        = "controller.create"
	DeleteLatency        = "controller.delete"
	MigrateLatency       = "controller.migrate"
	ViolatingPlatforms   = "optimizer.violating_platforms"
	TelemetryChangeEvent = "telemetry.changes"
)

type Nop struct{}

func (Nop) Increment(string)               {}
func (Nop) Duration(string, time.Duration) {}
func (Nop) Gauge(string, int)              {}
