package etcd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/Sh00ty/mec-orchestrator/internal/keylock"
)

const unlockTimeout = 5 * time.Second

// Locker serializes keys across orchestrator replicas. Mutexes sharing one
// session don't exclude each other, so keys are taken locally first.
type Locker struct {
	session *concurrency.Session
	local   *keylock.Local
}

var _ keylock.Locker = (*Locker)(nil)

func NewLocker(ctx context.Context, clnt *clientv3.Client, ttlSeconds int) (*Locker, error) {
	session, err := concurrency.NewSession(
		clnt,
		concurrency.WithContext(ctx),
		concurrency.WithTTL(ttlSeconds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock session: %w", err)
	}
	return &Locker{
		session: session,
		local:   keylock.NewLocal(),
	}, nil
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	localUnlock, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	mu := concurrency.NewMutex(l.session, lockKey(key))
	if err = mu.Lock(ctx); err != nil {
		localUnlock()
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			if err := mu.Unlock(ctx); err != nil {
				log.Error().Err(err).Msgf("failed to unlock %s, lease expiry will release it", key)
			}
			localUnlock()
		})
	}, nil
}

func (l *Locker) Close() error {
	return l.session.Close()
}
