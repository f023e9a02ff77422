package deployer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

var ErrUnknownPlatform = errors.New("deployer: no action endpoint for platform")

type Settings struct {
	Attempts uint
	Delay    time.Duration
	// per request, the caller bounds the whole call with its own context
	RequestTimeout time.Duration
}

// HTTP drives compute platform action api:
// PUT {endpoint}/actions/{appDId} to deploy and DELETE to undeploy.
type HTTP struct {
	client    *http.Client
	endpoints map[models.PlatformID]string
	settings  Settings

	log zerolog.Logger
}

func NewHTTP(endpoints map[models.PlatformID]string, settings Settings, logger zerolog.Logger) *HTTP {
	if settings.Attempts == 0 {
		settings.Attempts = 3
	}
	if settings.Delay == 0 {
		settings.Delay = 100 * time.Millisecond
	}
	if settings.RequestTimeout == 0 {
		settings.RequestTimeout = 5 * time.Second
	}
	return &HTTP{
		client:    &http.Client{Timeout: settings.RequestTimeout},
		endpoints: endpoints,
		settings:  settings,
		log:       logger.With().Str("component", "deployer").Logger(),
	}
}

type actionDto struct {
	PlatformID models.PlatformID `json:"platformId"`
	AppDID     models.AppDID     `json:"appDId"`
}

func (d *HTTP) Deploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) error {
	return d.do(ctx, http.MethodPut, platformID, appDID)
}

func (d *HTTP) Undeploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) error {
	return d.do(ctx, http.MethodDelete, platformID, appDID)
}

func (d *HTTP) do(ctx context.Context, method string, platformID models.PlatformID, appDID models.AppDID) error {
	base, ok := d.endpoints[platformID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, platformID)
	}
	target, err := url.JoinPath(base, "actions", string(appDID))
	if err != nil {
		return fmt.Errorf("failed to build action url for platform %s: %w", platformID, err)
	}
	body, err := json.Marshal(actionDto{PlatformID: platformID, AppDID: appDID})
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to form action request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := d.client.Do(req)
			if err != nil {
				return fmt.Errorf("request do error: %w", err)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			switch {
			case resp.StatusCode/100 == 2:
				return nil
			case method == http.MethodDelete && resp.StatusCode == http.StatusNotFound:
				// already gone
				return nil
			case resp.StatusCode/100 == 4:
				return retry.Unrecoverable(fmt.Errorf("platform %s rejected %s %s: status %d", platformID, method, appDID, resp.StatusCode))
			}
			return fmt.Errorf("platform %s answered %s %s with status %d", platformID, method, appDID, resp.StatusCode)
		},
		retry.Context(ctx),
		retry.Attempts(d.settings.Attempts),
		retry.Delay(d.settings.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.log.Warn().Err(err).Msgf("action %s %s on %s failed, attempt %d", method, appDID, platformID, n+1)
		}),
	)
}
