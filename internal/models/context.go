package models

import "time"

type ContextID string

type ContextState string

const (
	ContextActive    ContextState = "active"
	ContextMigrating ContextState = "migrating"
	ContextDeleted   ContextState = "deleted"
)

type AppContext struct {
	ID                ContextID
	AppDID            AppDID
	PlatformID        PlatformID
	CallbackReference string
	State             ContextState
	// platform a migrating context is being moved to, empty otherwise
	MigrationTarget   PlatformID

	// optimistic lock, bumped by registry on every successful write
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c AppContext) Live() bool {
	return c.State != ContextDeleted
}

// Placement is what create returns to the caller.
type Placement struct {
	ContextID    ContextID
	ReferenceURI string
}

type Credentials struct {
	Subject string
	Token   string
}
