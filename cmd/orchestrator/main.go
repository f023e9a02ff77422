package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Sh00ty/mec-orchestrator/internal/auth"
	"github.com/Sh00ty/mec-orchestrator/internal/catalog"
	"github.com/Sh00ty/mec-orchestrator/internal/controller"
	"github.com/Sh00ty/mec-orchestrator/internal/deployer"
	"github.com/Sh00ty/mec-orchestrator/internal/metrics"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/notifier"
	"github.com/Sh00ty/mec-orchestrator/internal/optimizer"
	"github.com/Sh00ty/mec-orchestrator/internal/policy"
	"github.com/Sh00ty/mec-orchestrator/internal/probe"
	"github.com/Sh00ty/mec-orchestrator/internal/registry/etcd"
	"github.com/Sh00ty/mec-orchestrator/internal/selector"
	"github.com/Sh00ty/mec-orchestrator/internal/telemetryfeed"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Msg("failed to read .env file")
	}

	appCfg := Config{}
	err := envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))
	gin.SetMode(gin.ReleaseMode)

	log.Warn().Msgf("running orchestrator node %s", appCfg.NodeID)

	placement, err := policy.Load(appCfg.PolicyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load placement policy")
	}
	apps, err := catalog.Load(appCfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load application catalog")
	}

	stores, err := openBackends(ctx, appCfg, placement.SeedPlatforms)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open registry backends")
	}

	var (
		closers        []func() error
		metricsHandler http.Handler = promhttp.Handler()
		m              metrics.Metrics
	)
	switch appCfg.MetricsBackend {
	case "statsd":
		sd := metrics.NewStatsd(appCfg.NodeID, "mec_orchestrator.", appCfg.StatsdAddr)
		closers = append(closers, sd.Close)
		m = sd
	default:
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom, err := metrics.NewPrometheus("mec_orchestrator", reg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to register metrics")
		}
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		m = prom
	}

	scorer, err := placement.Scorer()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scorer")
	}
	var rnd selector.Source
	if appCfg.SelectorSeed != 0 {
		rnd = rand.New(rand.NewPCG(appCfg.SelectorSeed, appCfg.SelectorSeed))
	}
	sel := selector.New(placement.Constraints, scorer, rnd)

	var authorizer controller.Authorizer = auth.AllowAll{}
	if len(placement.Tokens) > 0 {
		authorizer = auth.StaticTokens{Tokens: placement.Tokens}
	}

	var notifiers notifier.Fanout
	if appCfg.CallbackNotify {
		notifiers = append(notifiers, notifier.NewHTTPCallback(appCfg.NotifyTimeout))
	}
	if len(appCfg.KafkaBrokers) > 0 && appCfg.MigrationsTopic != "" {
		kn := notifier.NewKafka(
			notifier.NewKafkaWriter(appCfg.KafkaBrokers, appCfg.MigrationsTopic, appCfg.KafkaWriteAttempts),
		)
		closers = append(closers, kn.Close)
		notifiers = append(notifiers, kn)
	}

	ctrl := controller.New(
		controller.Deps{
			Registry:   stores.registry,
			Selector:   sel,
			Authorizer: authorizer,
			Deployer: deployer.NewHTTP(
				placement.ActionEndpoints,
				deployer.Settings{Attempts: appCfg.DeployAttempts},
				log.Logger,
			),
			Notifier: notifiers,
			Catalog:  apps,
			Locker:   stores.locker,
			Metrics:  m,
		},
		controller.Config{
			MaxContexts:            placement.MaxContexts,
			MaxContextsPerPlatform: placement.MaxContextsPerPlatform,
			AuthorizeTimeout:       appCfg.AuthorizeTimeout,
			DeployTimeout:          appCfg.DeployTimeout,
			UndeployTimeout:        appCfg.UndeployTimeout,
			NotifyTimeout:          appCfg.NotifyTimeout,
		},
		log.Logger,
	)

	opt := optimizer.New(
		stores.registry,
		sel,
		ctrl,
		m,
		optimizer.Config{
			Interval:            appCfg.OptimizationInterval,
			VictimPolicy:        placement.VictimPolicy,
			MigrationsPerSecond: placement.MigrationsRate,
			MigrationBurst:      placement.MigrationBurst,
		},
		log.Logger,
	)

	eg, egCtx := errgroup.WithContext(ctx)

	if stores.etcdClient != nil {
		elector := etcd.NewElector(stores.etcdClient, etcd.OptimizerLeadershipKey, appCfg.NodeID, log.Logger)
		opt.WithLeadership(elector.IsLeader)
		eg.Go(func() error {
			return elector.Run(egCtx)
		})
	}
	if appCfg.TelemetryBackend == backendEtcd {
		watcher := etcd.NewWatcher(
			etcd.PlatformsPrefix(),
			func(_ context.Context, events []*clientv3.Event) error {
				log.Debug().Msgf("got %d telemetry changes, triggering optimization", len(events))
				m.Increment(metrics.TelemetryChangeEvent)
				opt.Trigger()
				return nil
			},
			stores.etcdClient,
			0,
		)
		eg.Go(func() error {
			return watcher.Watch(egCtx)
		})
	}
	if len(appCfg.KafkaBrokers) > 0 && appCfg.TelemetryCDCTopic != "" {
		cdc := telemetryfeed.NewCDCWatcher(
			telemetryfeed.NewKafkaReader(appCfg.KafkaBrokers, appCfg.TelemetryCDCTopic, appCfg.TelemetryCDCGroup),
			func(_ context.Context, p models.Platform) {
				m.Increment(metrics.TelemetryChangeEvent)
				if sel.Constraints().Violates(p) {
					opt.Trigger()
				}
			},
			log.Logger,
		)
		closers = append(closers, cdc.Close)
		eg.Go(func() error {
			return cdc.Run(egCtx)
		})
	}

	eg.Go(func() error {
		return opt.Run(egCtx)
	})

	admin := probe.New(appCfg.AdminAddr, ctrl, apps, stores.ping, metricsHandler, log.Logger)
	eg.Go(func() error {
		return admin.Run(egCtx)
	})

	healthSrv := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	if appCfg.GrpcDebug {
		reflection.Register(srv)
	}
	eg.Go(func() error {
		log.Info().Msgf("running grpc health server on %s", appCfg.GrpcHealthAddr)
		ls, err := net.Listen("tcp", appCfg.GrpcHealthAddr)
		if err != nil {
			return err
		}
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return srv.Serve(ls)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		healthSrv.Shutdown()
		srv.GracefulStop()
		return nil
	})

	err = eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("orchestrator stopped with error")
	}

	var closeErr error
	for i := len(closers) - 1; i >= 0; i-- {
		closeErr = multierr.Append(closeErr, closers[i]())
	}
	closeErr = multierr.Append(closeErr, stores.Close())
	if closeErr != nil {
		log.Error().Err(closeErr).Msg("failed to release resources")
	}
	log.Info().Msg("orchestrator stopped")
}
