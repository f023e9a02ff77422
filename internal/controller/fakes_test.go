package controller

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/mec-orchestrator/internal/auth"
	"github.com/Sh00ty/mec-orchestrator/internal/catalog"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
	"github.com/Sh00ty/mec-orchestrator/internal/registry/inmemory"
	"github.com/Sh00ty/mec-orchestrator/internal/selector"
)

type pair struct {
	platform models.PlatformID
	app      models.AppDID
}

type recordingDeployer struct {
	mu        sync.Mutex
	deploys   map[pair]int
	undeploys map[pair]int

	deployErr   map[models.PlatformID]error
	undeployErr error
	// called inside Deploy, may block
	onDeploy func(ctx context.Context) error
	delay    time.Duration
}

func newRecordingDeployer() *recordingDeployer {
	return &recordingDeployer{
		deploys:   make(map[pair]int),
		undeploys: make(map[pair]int),
		deployErr: make(map[models.PlatformID]error),
	}
}

func (d *recordingDeployer) Deploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.onDeploy != nil {
		if err := d.onDeploy(ctx); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.deployErr[platformID]; err != nil {
		return err
	}
	d.deploys[pair{platformID, appDID}]++
	return nil
}

func (d *recordingDeployer) Undeploy(ctx context.Context, platformID models.PlatformID, appDID models.AppDID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.undeployErr != nil {
		return d.undeployErr
	}
	d.undeploys[pair{platformID, appDID}]++
	return nil
}

func (d *recordingDeployer) counts(platformID models.PlatformID, appDID models.AppDID) (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deploys[pair{platformID, appDID}], d.undeploys[pair{platformID, appDID}]
}

type notification struct {
	callback     string
	contextID    models.ContextID
	referenceURI string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) NotifyMigration(
	_ context.Context,
	callbackReference string,
	contextID models.ContextID,
	newReferenceURI string,
) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{callbackReference, contextID, newReferenceURI})
	return n.err
}

type harness struct {
	reg      *inmemory.Registry
	deployer *recordingDeployer
	notifier *recordingNotifier
	ctrl     *Controller
}

func testConstraints() selector.Constraints {
	return selector.Constraints{MaxLoad: 0.8, MinKeyAvailability: 0.5}
}

func newHarness(t *testing.T, cfg Config, authorizer Authorizer, platforms ...models.Platform) *harness {
	t.Helper()

	reg := inmemory.New(8)
	for _, p := range platforms {
		reg.SetPlatform(p)
	}
	apps, err := catalog.New(
		models.AppDescriptor{AppDID: "my_app_1", AppName: "qkd-echo"},
		models.AppDescriptor{AppDID: "my_app_2", AppName: "video-analytics"},
	)
	require.NoError(t, err)
	if authorizer == nil {
		authorizer = auth.AllowAll{}
	}
	if cfg.ConflictRetryDelay == 0 {
		cfg.ConflictRetryDelay = time.Millisecond
	}

	h := &harness{
		reg:      reg,
		deployer: newRecordingDeployer(),
		notifier: &recordingNotifier{},
	}
	h.ctrl = New(Deps{
		Registry:   reg,
		Selector:   selector.New(testConstraints(), nil, rand.New(rand.NewPCG(1, 1))),
		Authorizer: authorizer,
		Deployer:   h.deployer,
		Notifier:   h.notifier,
		Catalog:    apps,
	}, cfg, zerolog.Nop())
	return h
}

func (h *harness) contextsOn(t *testing.T, platformID models.PlatformID, appDID models.AppDID) []models.AppContext {
	t.Helper()
	contexts, err := h.reg.ListContextsByPlatformApp(context.Background(), platformID, appDID)
	require.NoError(t, err)
	return contexts
}

var (
	p1 = models.Platform{ID: "P1", ReferenceURI: "http://p1.mec:8080", Load: 0.9, KeyAvailability: 0.8}
	p2 = models.Platform{ID: "P2", ReferenceURI: "http://p2.mec:8080", Load: 0.3, KeyAvailability: 0.9}
	p3 = models.Platform{ID: "P3", ReferenceURI: "http://p3.mec:8080", Load: 0.2, KeyAvailability: 0.9}
)
