// Package auth holds the allow/deny gate consulted before a context is created.
package auth

import (
	"context"
	"crypto/subtle"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

// Wildcard token key matching any application.
const AnyApp models.AppDID = "*"

type Authorizer interface {
	Authorize(ctx context.Context, appDID models.AppDID, creds models.Credentials) (bool, error)
}

type AllowAll struct{}

func (AllowAll) Authorize(context.Context, models.AppDID, models.Credentials) (bool, error) {
	return true, nil
}

// StaticTokens accepts a caller whose token matches the one configured for
// the application or the wildcard one.
type StaticTokens struct {
	Tokens map[models.AppDID]string
}

func (s StaticTokens) Authorize(_ context.Context, appDID models.AppDID, creds models.Credentials) (bool, error) {
	if creds.Token == "" {
		return false, nil
	}
	for _, key := range []models.AppDID{appDID, AnyApp} {
		want, ok := s.Tokens[key]
		if !ok || want == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(creds.Token)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

type Func func(ctx context.Context, appDID models.AppDID, creds models.Credentials) (bool, error)

func (f Func) Authorize(ctx context.Context, appDID models.AppDID, creds models.Credentials) (bool, error) {
	return f(ctx, appDID, creds)
}
