package notifier

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

type Notifier interface {
	NotifyMigration(
		ctx context.Context,
		callbackReference string,
		contextID models.ContextID,
		newReferenceURI string,
	) error
}

type migrationDto struct {
	ContextID         models.ContextID `json:"contextId"`
	CallbackReference string           `json:"callbackReference,omitempty"`
	ReferenceURI      string           `json:"referenceURI"`
	Timestamp         time.Time        `json:"timestamp"`
}

type Nop struct{}

func (Nop) NotifyMigration(context.Context, string, models.ContextID, string) error {
	return nil
}

// Fanout delivers to every notifier, errors are combined.
type Fanout []Notifier

func (f Fanout) NotifyMigration(
	ctx context.Context,
	callbackReference string,
	contextID models.ContextID,
	newReferenceURI string,
) error {
	var err error
	for _, n := range f {
		err = multierr.Append(err, n.NotifyMigration(ctx, callbackReference, contextID, newReferenceURI))
	}
	return err
}
