package main

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

const (
	backendMemory   = "memory"
	backendEtcd     = "etcd"
	backendPostgres = "postgres"
)

type Config struct {
	NodeID      string `envconfig:"ORCHESTRATOR_NODE_ID"`
	LoggerLevel string `envconfig:"LOGGER_LEVEL,optional"`

	PolicyPath  string `envconfig:"POLICY_PATH"`
	CatalogPath string `envconfig:"CATALOG_PATH"`

	// memory | etcd
	RegistryBackend string `envconfig:"REGISTRY_BACKEND,default=memory"`
	// memory | etcd | postgres
	TelemetryBackend string `envconfig:"TELEMETRY_BACKEND,default=memory"`

	EtcdEndpoints   []string      `envconfig:"ETCD_ENDPOINTS,optional"`
	EtcdDialTimeout time.Duration `envconfig:"ETCD_DIAL_TIMEOUT,default=5s"`
	EtcdLockTTL     int           `envconfig:"ETCD_LOCK_TTL_SECONDS,default=30"`

	DatabaseHost     string `envconfig:"DATABASE_HOST,optional"`
	DatabaseUser     string `envconfig:"DATABASE_USER,optional"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD,optional"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT,optional"`
	DatabaseName     string `envconfig:"DATABASE_NAME,optional"`

	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS,optional"`
	MigrationsTopic    string   `envconfig:"KAFKA_MIGRATIONS_TOPIC,optional"`
	TelemetryCDCTopic  string   `envconfig:"KAFKA_TELEMETRY_CDC_TOPIC,optional"`
	TelemetryCDCGroup  string   `envconfig:"KAFKA_TELEMETRY_CDC_GROUP,default=mec-orchestrator"`
	CallbackNotify     bool     `envconfig:"NOTIFY_CALLBACK_HTTP,default=true"`
	KafkaWriteAttempts int      `envconfig:"KAFKA_WRITE_ATTEMPTS,default=3"`

	// statsd | prometheus
	MetricsBackend string `envconfig:"METRICS_BACKEND,default=prometheus"`
	StatsdAddr     string `envconfig:"STATSD_ADDR,optional"`

	OptimizationInterval time.Duration `envconfig:"OPTIMIZATION_INTERVAL,default=30s"`
	// zero seeds selection from the global source
	SelectorSeed uint64 `envconfig:"SELECTOR_SEED,optional"`

	AuthorizeTimeout time.Duration `envconfig:"AUTHORIZE_TIMEOUT,default=2s"`
	DeployTimeout    time.Duration `envconfig:"DEPLOY_TIMEOUT,default=30s"`
	UndeployTimeout  time.Duration `envconfig:"UNDEPLOY_TIMEOUT,default=30s"`
	NotifyTimeout    time.Duration `envconfig:"NOTIFY_TIMEOUT,default=5s"`
	DeployAttempts   uint          `envconfig:"DEPLOY_ATTEMPTS,default=3"`

	AdminAddr      string `envconfig:"ADMIN_ADDR,default=0.0.0.0:8080"`
	GrpcHealthAddr string `envconfig:"GRPC_HEALTH_ADDR,default=0.0.0.0:9090"`
	GrpcDebug      bool   `envconfig:"GRPC_DEBUG,optional"`
}
