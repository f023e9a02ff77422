package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/mec-orchestrator/internal/policy"
	"github.com/Sh00ty/mec-orchestrator/internal/registry/postgres"
)

type Config struct {
	DatabaseHost     string `envconfig:"DATABASE_HOST"`
	DatabaseUser     string `envconfig:"DATABASE_USER"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT"`
	DatabaseName     string `envconfig:"DATABASE_NAME"`
}

// migration creates telemetry schema and optionally seeds platforms
// declared with telemetry in a policy file.
func main() {
	seedPolicy := flag.String("seed", "", "policy file with platforms to upsert")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	appCfg := Config{}
	err := envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}

	telemetry, err := postgres.NewTelemetry(
		ctx,
		appCfg.DatabaseUser,
		appCfg.DatabasePassword,
		appCfg.DatabaseHost,
		appCfg.DatabasePort,
		appCfg.DatabaseName,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer telemetry.Close()

	if err = telemetry.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}
	log.Info().Msg("telemetry schema is up to date")

	if *seedPolicy == "" {
		return
	}
	p, err := policy.Load(*seedPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load seed policy")
	}
	for _, platform := range p.SeedPlatforms {
		if err = telemetry.UpsertPlatform(ctx, platform); err != nil {
			log.Fatal().Err(err).Msgf("failed to seed platform %s", platform.ID)
		}
	}
	log.Info().Msgf("seeded %d platforms", len(p.SeedPlatforms))
}
