package etcd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	leaderLeaseTTLInSeconds = 15
	resignTimeout           = 5 * time.Second
)

// Elector keeps campaigning for key and tells whether this instance leads.
type Elector struct {
	etcd   *clientv3.Client
	key    string
	nodeID string
	ttl    int
	leader atomic.Bool

	log zerolog.Logger
}

func NewElector(clnt *clientv3.Client, key, nodeID string, logger zerolog.Logger) *Elector {
	return &Elector{
		etcd:   clnt,
		key:    key,
		nodeID: nodeID,
		ttl:    leaderLeaseTTLInSeconds,
		log:    logger.With().Str("component", "elector").Logger(),
	}
}

func (e *Elector) IsLeader() bool {
	return e.leader.Load()
}

// Run returns after ctx is done. A leader resigns on the way out so another
// replica takes over without waiting for the lease to expire.
func (e *Elector) Run(ctx context.Context) error {
	for {
		session, election, err := e.becomeLeader(ctx)
		if err != nil {
			return err
		}
		if session == nil {
			return nil
		}
		e.leader.Store(true)
		// session keepalive stops with ctx too, so both may be ready
		select {
		case <-session.Done():
		case <-ctx.Done():
		}
		e.leader.Store(false)
		if ctx.Err() != nil {
			e.release(session, election)
			return nil
		}
		e.log.Warn().Msgf("session expired, leadership for %s lost", e.key)
	}
}

// becomeLeader blocks until this instance wins. Nil session means ctx ended first.
func (e *Elector) becomeLeader(ctx context.Context) (*concurrency.Session, *concurrency.Election, error) {
	session, err := concurrency.NewSession(
		e.etcd,
		concurrency.WithContext(ctx),
		concurrency.WithTTL(e.ttl),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	election := concurrency.NewElection(session, e.key)

	for {
		err = election.Campaign(ctx, e.nodeID)
		if errors.Is(err, concurrency.ErrElectionNotLeader) {
			continue
		}
		if ctx.Err() != nil {
			e.release(session, nil)
			return nil, nil, nil
		}
		if err != nil {
			e.release(session, nil)
			return nil, nil, err
		}
		e.log.Warn().Msgf("instance %s won leader election for %s", e.nodeID, e.key)
		return session, election, nil
	}
}

// release drops the leader key and revokes the session lease. Session.Close
// revokes with the session context, which is already canceled here.
func (e *Elector) release(session *concurrency.Session, election *concurrency.Election) {
	ctx, cancel := context.WithTimeout(context.Background(), resignTimeout)
	defer cancel()

	if election != nil {
		if err := election.Resign(ctx); err != nil {
			e.log.Error().Err(err).Msgf("failed to resign %s, lease expiry will release it", e.key)
		} else {
			e.log.Info().Msgf("instance %s resigned leadership for %s", e.nodeID, e.key)
		}
	}
	session.Orphan()
	if _, err := e.etcd.Revoke(ctx, session.Lease()); err != nil {
		e.log.Error().Err(err).Msg("failed to revoke election lease")
	}
}
