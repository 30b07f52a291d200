// Package lock keeps at most one harvest run active per channel.
package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrHeld is returned when another run already holds the channel.
	ErrHeld = errors.New("channel lock held by another run")
	// ErrNotHeld is returned on release when the lock expired or was taken over.
	ErrNotHeld = errors.New("channel lock not held")
)

// Lease is a held channel. Both methods return ErrNotHeld once the lease
// expired, was taken over or was released.
type Lease interface {
	// Extend restarts the lease's expiry.
	Extend(ctx context.Context) error
	// Release gives the channel back.
	Release(ctx context.Context) error
}

// ChannelLock grants exclusive access to a channel without blocking.
type ChannelLock interface {
	TryLock(ctx context.Context, channelID string) (Lease, error)
}

// Local is an in-process ChannelLock for single-instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(_ context.Context, channelID string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[channelID]; ok {
		return nil, ErrHeld
	}
	l.held[channelID] = struct{}{}
	return &localLease{owner: l, channelID: channelID}, nil
}

// localLease never expires, so Extend only reports whether it was released.
type localLease struct {
	owner     *Local
	channelID string
	released  bool
}

func (ll *localLease) Extend(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.released {
		return ErrNotHeld
	}
	return nil
}

func (ll *localLease) Release(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.released {
		return ErrNotHeld
	}
	ll.released = true
	delete(ll.owner.held, ll.channelID)
	return nil
}
