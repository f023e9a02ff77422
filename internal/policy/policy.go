package policy

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/optimizer"
	"github.com/Sh00ty/mec-orchestrator/internal/selector"
)

// policy.toml key mapping to placement settings.
type fileConfig struct {
	MaxLoad                float64  `toml:"max_load"`
	MinKeyAvailability     float64  `toml:"min_key_availability"`
	Blacklist              []string `toml:"blacklist"`
	Whitelist              []string `toml:"whitelist"`
	WhitelistMode          bool     `toml:"whitelist_mode"`
	MaxContexts            int      `toml:"max_contexts"`
	MaxContextsPerPlatform int      `toml:"max_contexts_per_platform"`

	Scorer struct {
		Kind string  `toml:"kind"`
		Load float64 `toml:"load"`
		Key  float64 `toml:"key"`
	} `toml:"scorer"`

	Optimizer struct {
		VictimPolicy        string  `toml:"victim_policy"`
		MigrationsPerSecond float64 `toml:"migrations_per_second"`
		MigrationBurst      int     `toml:"migration_burst"`
	} `toml:"optimizer"`

	Platforms []struct {
		ID              string   `toml:"id"`
		ActionEndpoint  string   `toml:"action_endpoint"`
		ReferenceURI    string   `toml:"reference_uri"`
		Load            *float64 `toml:"load"`
		KeyAvailability *float64 `toml:"key_availability"`
	} `toml:"platforms"`

	Auth struct {
		Tokens map[string]string `toml:"tokens"`
	} `toml:"auth"`
}

type Policy struct {
	Constraints selector.Constraints

	ScorerKind     selector.ScorerKind
	ScorerLoad     float64
	ScorerKey      float64
	VictimPolicy   optimizer.VictimPolicy
	MigrationsRate float64
	MigrationBurst int

	MaxContexts            int
	MaxContextsPerPlatform int

	// deploy/undeploy action api per platform
	ActionEndpoints map[models.PlatformID]string
	// initial telemetry for platforms declaring it, used by in-memory backend
	SeedPlatforms []models.Platform
	// empty means every caller is allowed
	Tokens map[models.AppDID]string
}

func Default() Policy {
	return Policy{
		Constraints: selector.Constraints{
			MaxLoad:            0.8,
			MinKeyAvailability: 0.2,
		},
		ScorerKind:      selector.LinearScorerKind,
		ScorerLoad:      1,
		ScorerKey:       1,
		VictimPolicy:    optimizer.VictimOne,
		MigrationBurst:  1,
		ActionEndpoints: map[models.PlatformID]string{},
	}
}

func (p Policy) Scorer() (selector.Scorer, error) {
	return selector.NewScorer(p.ScorerKind, p.ScorerLoad, p.ScorerKey)
}

// Load overlays policy file on top of defaults.
func Load(path string) (Policy, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Policy{}, fmt.Errorf("load policy: %w", err)
	}

	if meta.IsDefined("max_load") {
		cfg.Constraints.MaxLoad = raw.MaxLoad
	}
	if meta.IsDefined("min_key_availability") {
		cfg.Constraints.MinKeyAvailability = raw.MinKeyAvailability
	}
	if meta.IsDefined("blacklist") {
		cfg.Constraints.Blacklist = idSet(raw.Blacklist)
	}
	if meta.IsDefined("whitelist") {
		cfg.Constraints.Whitelist = idSet(raw.Whitelist)
	}
	if meta.IsDefined("whitelist_mode") {
		cfg.Constraints.WhitelistMode = raw.WhitelistMode
	}
	if meta.IsDefined("max_contexts") {
		cfg.MaxContexts = raw.MaxContexts
	}
	if meta.IsDefined("max_contexts_per_platform") {
		cfg.MaxContextsPerPlatform = raw.MaxContextsPerPlatform
	}
	if meta.IsDefined("scorer", "kind") {
		cfg.ScorerKind = selector.ScorerKind(strings.TrimSpace(raw.Scorer.Kind))
	}
	if meta.IsDefined("scorer", "load") {
		cfg.ScorerLoad = raw.Scorer.Load
	}
	if meta.IsDefined("scorer", "key") {
		cfg.ScorerKey = raw.Scorer.Key
	}
	if meta.IsDefined("optimizer", "victim_policy") {
		cfg.VictimPolicy, err = optimizer.ParseVictimPolicy(strings.TrimSpace(raw.Optimizer.VictimPolicy))
		if err != nil {
			return Policy{}, fmt.Errorf("load policy: %w", err)
		}
	}
	if meta.IsDefined("optimizer", "migrations_per_second") {
		cfg.MigrationsRate = raw.Optimizer.MigrationsPerSecond
	}
	if meta.IsDefined("optimizer", "migration_burst") {
		cfg.MigrationBurst = raw.Optimizer.MigrationBurst
	}
	for _, p := range raw.Platforms {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return Policy{}, fmt.Errorf("load policy: platform without id")
		}
		cfg.ActionEndpoints[models.PlatformID(id)] = strings.TrimSpace(p.ActionEndpoint)
		if p.Load == nil && p.KeyAvailability == nil {
			continue
		}
		seed := models.Platform{ID: models.PlatformID(id), ReferenceURI: p.ReferenceURI}
		if p.Load != nil {
			seed.Load = *p.Load
		}
		if p.KeyAvailability != nil {
			seed.KeyAvailability = *p.KeyAvailability
		}
		cfg.SeedPlatforms = append(cfg.SeedPlatforms, seed)
	}
	if len(raw.Auth.Tokens) > 0 {
		cfg.Tokens = make(map[models.AppDID]string, len(raw.Auth.Tokens))
		for app, token := range raw.Auth.Tokens {
			cfg.Tokens[models.AppDID(app)] = token
		}
	}

	if err = cfg.validate(); err != nil {
		return Policy{}, fmt.Errorf("load policy: %w", err)
	}
	return cfg, nil
}

func (p Policy) validate() error {
	if p.Constraints.MaxLoad < 0 || p.Constraints.MaxLoad > 1 {
		return fmt.Errorf("max_load %v is out of [0,1]", p.Constraints.MaxLoad)
	}
	if p.Constraints.MinKeyAvailability < 0 || p.Constraints.MinKeyAvailability > 1 {
		return fmt.Errorf("min_key_availability %v is out of [0,1]", p.Constraints.MinKeyAvailability)
	}
	if p.MaxContexts < 0 || p.MaxContextsPerPlatform < 0 {
		return fmt.Errorf("context limits must be non-negative")
	}
	if _, err := p.Scorer(); err != nil {
		return err
	}
	return nil
}

func idSet(ids []string) map[models.PlatformID]struct{} {
	set := make(map[models.PlatformID]struct{}, len(ids))
	for _, id := range ids {
		set[models.PlatformID(strings.TrimSpace(id))] = struct{}{}
	}
	return set
}
