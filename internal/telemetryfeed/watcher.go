package telemetryfeed

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ChangeHandler gets the new state of a created or updated platform.
type ChangeHandler func(ctx context.Context, platform models.Platform)

// CDCWatcher follows change events of the telemetry table.
type CDCWatcher struct {
	msgReader MessageReader
	onChange  ChangeHandler

	log zerolog.Logger
}

func NewKafkaReader(brokers []string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		MaxBytes:    10 * 1024 * 1024,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})
}

func NewCDCWatcher(reader MessageReader, onChange ChangeHandler, logger zerolog.Logger) *CDCWatcher {
	return &CDCWatcher{
		msgReader: reader,
		onChange:  onChange,
		log:       logger.With().Str("component", "telemetry-cdc").Logger(),
	}
}

func (w *CDCWatcher) Run(ctx context.Context) error {
	for {
		msg, err := w.msgReader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.log.Error().Err(err).Msg("failed to fetch telemetry change")
			continue
		}
		w.handle(ctx, msg)

		err = w.msgReader.CommitMessages(ctx, msg)
		if err != nil {
			w.log.Error().Err(err).Msg("failed to commit message: it will doubled")
		}
	}
}

func (w *CDCWatcher) handle(ctx context.Context, msg kafka.Message) {
	if len(msg.Value) == 0 {
		// tombstone after delete
		return
	}
	change := Value[platformRowDto]{}
	err := json.Unmarshal(msg.Value, &change)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to decode message from json")
		return
	}
	switch change.Op {
	case "c", "u", "r":
		if change.After == nil {
			w.log.Warn().Msgf("change %s without row state, skip", change.Op)
			return
		}
		w.onChange(ctx, models.Platform{
			ID:              models.PlatformID(change.After.PlatformID),
			ReferenceURI:    change.After.ReferenceURI,
			Load:            change.After.Load,
			KeyAvailability: change.After.KeyAvailability,
			Blacklisted:     change.After.Blacklisted,
			Whitelisted:     change.After.Whitelisted,
		})
	case "d":
		w.log.Info().Msg("platform removed from telemetry")
	default:
		w.log.Debug().Msgf("unknown change op %q", change.Op)
	}
}

func (w *CDCWatcher) Close() error {
	return w.msgReader.Close()
}
