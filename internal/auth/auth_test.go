package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

func TestStaticTokens(t *testing.T) {
	a := StaticTokens{Tokens: map[models.AppDID]string{
		"my_app_1": "secret-1",
		AnyApp:     "admin",
	}}

	tests := []struct {
		name  string
		app   models.AppDID
		token string
		want  bool
	}{
		{name: "app token", app: "my_app_1", token: "secret-1", want: true},
		{name: "wildcard token", app: "other", token: "admin", want: true},
		{name: "wrong token", app: "my_app_1", token: "secret-2", want: false},
		{name: "token of another app", app: "other", token: "secret-1", want: false},
		{name: "empty token", app: "my_app_1", token: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := a.Authorize(context.Background(), tt.app, models.Credentials{Token: tt.token})
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestAllowAllAndFunc(t *testing.T) {
	ok, err := AllowAll{}.Authorize(context.Background(), "x", models.Credentials{})
	require.NoError(t, err)
	require.True(t, ok)

	boom := errors.New("boom")
	f := Func(func(context.Context, models.AppDID, models.Credentials) (bool, error) {
		return false, boom
	})
	_, err = f.Authorize(context.Background(), "x", models.Credentials{})
	require.ErrorIs(t, err, boom)
}
