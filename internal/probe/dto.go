package probe

import (
	"time"

	"github.com/Sh00ty/mec-orchestrator/internal/controller"
)

type contextDto struct {
	ContextID         string    `json:"contextId"`
	AppDID            string    `json:"appDId"`
	PlatformID        string    `json:"platformId"`
	ReferenceURI      string    `json:"referenceURI,omitempty"`
	CallbackReference string    `json:"callbackReference,omitempty"`
	State             string    `json:"state"`
	Version           uint64    `json:"version"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toContextDto(info controller.ContextInfo) contextDto {
	return contextDto{
		ContextID:         string(info.ID),
		AppDID:            string(info.AppDID),
		PlatformID:        string(info.PlatformID),
		ReferenceURI:      info.ReferenceURI,
		CallbackReference: info.CallbackReference,
		State:             string(info.State),
		Version:           info.Version,
		CreatedAt:         info.CreatedAt,
		UpdatedAt:         info.UpdatedAt,
	}
}
