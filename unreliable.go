package paxos

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// UnreliableTransport wraps a Registry with message loss and random delay,
// for destabilization runs: each delivery is independently dropped with
// probability dropRate and otherwise delayed uniformly between minDelay and
// maxDelay. Broadcasts decay into per-participant deliveries so each leg
// suffers its own fate. Error reporting passes through untouched.
//
// Liveness under such a transport is not guaranteed; safety is, which is
// what the destabilization tests assert.
type UnreliableTransport[V any] struct {
	registry *Registry[V]
	dropRate float64
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUnreliableTransport wraps registry. dropRate is clamped to [0, 1);
// delays of zero mean immediate delivery.
func NewUnreliableTransport[V any](registry *Registry[V], dropRate float64, minDelay, maxDelay time.Duration, seed int64) *UnreliableTransport[V] {
	if dropRate < 0 {
		dropRate = 0
	}
	if dropRate >= 1 {
		dropRate = 0.99
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &UnreliableTransport[V]{
		registry: registry,
		dropRate: dropRate,
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Receive passes through to the wrapped registry.
func (u *UnreliableTransport[V]) Receive(uid string) <-chan Msg[V] {
	return u.registry.Receive(uid)
}

// Send delivers m to target, maybe late, maybe never.
func (u *UnreliableTransport[V]) Send(ctx context.Context, targetUID string, m Msg[V]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.deliver(targetUID, m)
	return nil
}

// Broadcast delivers m to every participant independently.
func (u *UnreliableTransport[V]) Broadcast(ctx context.Context, m Msg[V]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, uid := range u.registry.Participants() {
		u.deliver(uid, m)
	}
	return nil
}

// ReportError passes through to the wrapped registry.
func (u *UnreliableTransport[V]) ReportError(uid string, err error) {
	u.registry.ReportError(uid, err)
}

func (u *UnreliableTransport[V]) deliver(targetUID string, m Msg[V]) {
	u.mu.Lock()
	drop := u.rng.Float64() < u.dropRate
	delay := u.minDelay
	if span := u.maxDelay - u.minDelay; span > 0 {
		delay += time.Duration(u.rng.Int63n(int64(span)))
	}
	u.mu.Unlock()
	if drop {
		return
	}
	if delay <= 0 {
		u.registry.Send(context.Background(), targetUID, m)
		return
	}
	time.AfterFunc(delay, func() {
		u.registry.Send(context.Background(), targetUID, m)
	})
}
