// Package pgerror turns postgres integrity violations into registry errors.
package pgerror

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
	codeNotNull         = "23502"
)

const (
	TelemetryLoadCheck = "platform_telemetry_load_check"
	TelemetryKeyCheck  = "platform_telemetry_key_check"
)

var (
	ErrInvalidTelemetry = errors.New("telemetry out of range")
	ErrMissingField     = errors.New("telemetry field missing")
	ErrDuplicate        = errors.New("duplicate platform")
)

var byConstraint = map[string]error{
	TelemetryLoadCheck: ErrInvalidTelemetry,
	TelemetryKeyCheck:  ErrInvalidTelemetry,
}

// Translate wraps a known violation into its domain error, keeping the
// violated constraint or column in the message. Other errors come back as is.
func Translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeCheckViolation:
		if domainErr, ok := byConstraint[pgErr.ConstraintName]; ok {
			return fmt.Errorf("%w: violates %s", domainErr, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w: violates %s", ErrInvalidTelemetry, pgErr.ConstraintName)
	case codeNotNull:
		return fmt.Errorf("%w: %s", ErrMissingField, pgErr.ColumnName)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
