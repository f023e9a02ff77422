package etcd

import (
	"context"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type WatchHandler func(ctx context.Context, events []*clientv3.Event) error

// Watcher follows every change under prefix starting after startRevision.
type Watcher struct {
	prefix       string
	handler      WatchHandler
	lastRevision int64
	watcher      clientv3.Watcher
}

func NewWatcher(
	prefix string,
	handler WatchHandler,
	watcher clientv3.Watcher,
	startRevision int64,
) *Watcher {
	return &Watcher{
		prefix:       prefix,
		handler:      handler,
		watcher:      watcher,
		lastRevision: startRevision,
	}
}

func (w *Watcher) Watch(ctx context.Context) error {
	ctx = clientv3.WithRequireLeader(ctx)
	watch := func(rev int64) clientv3.WatchChan {
		opts := []clientv3.OpOption{
			clientv3.WithPrefix(),
			clientv3.WithCreatedNotify(),
		}
		if rev > 0 {
			opts = append(opts, clientv3.WithRev(rev+1))
		}
		return w.watcher.Watch(ctx, w.prefix, opts...)
	}
	var (
		watcherChan = watch(w.lastRevision)
		logger      = log.With().Str("prefix", w.prefix).Logger()
	)
	for {
		select {
		case event, ok := <-watcherChan:
			if !ok {
				logger.Info().Msg("watcher channel closed")
				return nil
			}
			if event.Canceled {
				logger.Error().Err(event.Err()).Msg("watcher failure: canceled, retry")
				watcherChan = watch(w.lastRevision)
				continue
			}
			if event.Err() != nil {
				logger.Error().Err(event.Err()).Msg("got unexpected watch error")
				continue
			}
			w.lastRevision = event.Header.Revision
			if event.IsProgressNotify() || len(event.Events) == 0 {
				continue
			}
			err := w.handler(ctx, event.Events)
			if err != nil {
				logger.Error().Err(err).Msg("handler error, skip")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
