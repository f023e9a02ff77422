package models

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrAuthDenied          = errors.New("authorization denied")
	ErrNoCandidatePlatform = errors.New("no candidate platform")
	ErrDeployFailure       = errors.New("deploy failure")
	ErrUndeployFailure     = errors.New("undeploy failure")
	ErrRegistryConflict    = errors.New("registry conflict")
	ErrNotFound            = errors.New("not found")
	ErrContextLimit        = errors.New("maximum number of contexts reached")
)
