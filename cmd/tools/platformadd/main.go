package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry/etcd"
)

func main() {
	var (
		endpoints   = flag.String("etcd", "localhost:2379", "comma separated etcd endpoints")
		id          = flag.String("id", "", "platform id")
		uri         = flag.String("uri", "", "reference uri of the platform")
		load        = flag.Float64("load", 0, "platform load in [0,1]")
		key         = flag.Float64("key", 1, "key availability in [0,1]")
		blacklisted = flag.Bool("blacklisted", false, "exclude platform from placement")
		whitelisted = flag.Bool("whitelisted", false, "mark platform as whitelisted")
	)
	flag.Parse()

	if *id == "" {
		log.Fatal().Msg("platform id is required")
	}
	if *load < 0 || *load > 1 || *key < 0 || *key > 1 {
		log.Fatal().Msg("load and key availability must be in [0,1]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clnt, err := etcd.NewClient(strings.Split(*endpoints, ","), 5*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect etcd")
	}
	defer clnt.Close()

	err = etcd.NewRegistry(clnt).PutPlatform(ctx, models.Platform{
		ID:              models.PlatformID(*id),
		ReferenceURI:    *uri,
		Load:            *load,
		KeyAvailability: *key,
		Blacklisted:     *blacklisted,
		Whitelisted:     *whitelisted,
	})
	if err != nil {
		log.Fatal().Err(err).Msgf("failed to put platform %s", *id)
	}
	log.Info().Msgf("platform %s stored", *id)
}
