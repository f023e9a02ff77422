package etcd

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

type contextDto struct {
	ID                models.ContextID    `json:"context_id"`
	AppDID            models.AppDID       `json:"app_d_id"`
	PlatformID        models.PlatformID   `json:"platform_id"`
	CallbackReference string              `json:"callback_reference,omitempty"`
	State             models.ContextState `json:"state"`
	MigrationTarget   models.PlatformID   `json:"migration_target,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type platformDto struct {
	ReferenceURI    string  `json:"reference_uri"`
	Load            float64 `json:"load"`
	KeyAvailability float64 `json:"key_availability"`
	Blacklisted     bool    `json:"blacklisted,omitempty"`
	Whitelisted     bool    `json:"whitelisted,omitempty"`
}

func toContextDto(c models.AppContext) contextDto {
	return contextDto{
		ID:                c.ID,
		AppDID:            c.AppDID,
		PlatformID:        c.PlatformID,
		CallbackReference: c.CallbackReference,
		State:             c.State,
		MigrationTarget:   c.MigrationTarget,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// decodeContext uses mod revision of the record as its version.
func decodeContext(kv *mvccpb.KeyValue) (models.AppContext, error) {
	dto := contextDto{}
	if err := json.Unmarshal(kv.Value, &dto); err != nil {
		return models.AppContext{}, fmt.Errorf("failed to decode context %s: %w", kv.Key, err)
	}
	return models.AppContext{
		ID:                dto.ID,
		AppDID:            dto.AppDID,
		PlatformID:        dto.PlatformID,
		CallbackReference: dto.CallbackReference,
		State:             dto.State,
		MigrationTarget:   dto.MigrationTarget,
		Version:           uint64(kv.ModRevision),
		CreatedAt:         dto.CreatedAt,
		UpdatedAt:         dto.UpdatedAt,
	}, nil
}

func toPlatformDto(p models.Platform) platformDto {
	return platformDto{
		ReferenceURI:    p.ReferenceURI,
		Load:            p.Load,
		KeyAvailability: p.KeyAvailability,
		Blacklisted:     p.Blacklisted,
		Whitelisted:     p.Whitelisted,
	}
}

func decodePlatform(kv *mvccpb.KeyValue) (models.Platform, error) {
	dto := platformDto{}
	if err := json.Unmarshal(kv.Value, &dto); err != nil {
		return models.Platform{}, fmt.Errorf("failed to decode platform %s: %w", kv.Key, err)
	}
	return models.Platform{
		ID:              models.PlatformID(path.Base(string(kv.Key))),
		ReferenceURI:    dto.ReferenceURI,
		Load:            dto.Load,
		KeyAvailability: dto.KeyAvailability,
		Blacklisted:     dto.Blacklisted,
		Whitelisted:     dto.Whitelisted,
	}, nil
}

func mustJsonMarshal(val any) string {
	js, err := json.Marshal(val)
	if err != nil {
		panic(err)
	}
	return string(js)
}
