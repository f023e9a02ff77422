package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"

	"github.com/Sh00ty/mec-orchestrator/internal/keylock"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry"
	"github.com/Sh00ty/mec-orchestrator/internal/registry/etcd"
	"github.com/Sh00ty/mec-orchestrator/internal/registry/inmemory"
	"github.com/Sh00ty/mec-orchestrator/internal/registry/postgres"
)

const inmemoryShards = 32

type backends struct {
	registry registry.Registry
	locker   keylock.Locker

	// nil unless some backend lives in etcd
	etcdClient *clientv3.Client
	checks     []func(ctx context.Context) error
	closers    []func() error
}

func (b *backends) ping(ctx context.Context) error {
	var err error
	for _, check := range b.checks {
		err = multierr.Append(err, check(ctx))
	}
	return err
}

func (b *backends) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}
	return err
}

func openBackends(ctx context.Context, cfg Config, seeds []models.Platform) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			_ = b.Close()
		}
	}()

	if cfg.RegistryBackend == backendEtcd || cfg.TelemetryBackend == backendEtcd {
		if len(cfg.EtcdEndpoints) == 0 {
			return nil, fmt.Errorf("etcd backend requires ETCD_ENDPOINTS")
		}
		clnt, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdDialTimeout)
		if err != nil {
			return nil, err
		}
		b.etcdClient = clnt
		b.closers = append(b.closers, clnt.Close)
	}

	var (
		memory    *inmemory.Registry
		contexts  registry.ContextStore
		telemetry registry.TelemetryReader
	)
	newMemory := func() *inmemory.Registry {
		if memory == nil {
			memory = inmemory.New(inmemoryShards)
		}
		return memory
	}

	switch cfg.RegistryBackend {
	case backendMemory:
		contexts = newMemory()
		b.locker = keylock.NewLocal()
	case backendEtcd:
		reg := etcd.NewRegistry(b.etcdClient)
		contexts = reg
		b.checks = append(b.checks, reg.Ping)

		locker, err := etcd.NewLocker(ctx, b.etcdClient, cfg.EtcdLockTTL)
		if err != nil {
			return nil, err
		}
		b.locker = locker
		b.closers = append(b.closers, locker.Close)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
	}

	switch cfg.TelemetryBackend {
	case backendMemory:
		mem := newMemory()
		for _, p := range seeds {
			mem.SetPlatform(p)
		}
		log.Info().Msgf("seeded %d platforms into in-memory telemetry", len(seeds))
		telemetry = mem
	case backendEtcd:
		reg := etcd.NewRegistry(b.etcdClient)
		telemetry = reg
		b.checks = append(b.checks, reg.Ping)
	case backendPostgres:
		pg, err := postgres.NewTelemetry(
			ctx,
			cfg.DatabaseUser,
			cfg.DatabasePassword,
			cfg.DatabaseHost,
			cfg.DatabasePort,
			cfg.DatabaseName,
		)
		if err != nil {
			return nil, err
		}
		telemetry = pg
		b.checks = append(b.checks, pg.Ping)
		b.closers = append(b.closers, func() error {
			pg.Close()
			return nil
		})
	default:
		return nil, fmt.Errorf("unknown telemetry backend %q", cfg.TelemetryBackend)
	}

	b.registry = registry.Compose(telemetry, contexts)
	ok = true
	return b, nil
}
