package paxos

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Learner is the arbiter role. It counts Acceptance announcements grouped
// by (suggestion id, stringified value) and, the first time any group
// reaches majority, declares that value final exactly once and broadcasts
// Success so suggesters stop their round loops.
type Learner[V any] struct {
	uid       string
	transport Transport[V]
	api       ArbiterAPI[V]
	majority  int
	logger    *log.Logger

	mu       sync.Mutex
	counts   map[string]int
	declared bool
}

// NewLearner creates an arbiter for uid. majority is the acceptance count a
// (sid, value) group must reach before the value is final.
func NewLearner[V any](uid string, transport Transport[V], api ArbiterAPI[V], majority int, logger *log.Logger) *Learner[V] {
	return &Learner[V]{
		uid:       uid,
		transport: transport,
		api:       api,
		majority:  majority,
		logger:    logger,
		counts:    make(map[string]int),
	}
}

// Declared reports whether this arbiter has already declared a final value.
func (l *Learner[V]) Declared() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.declared
}

// HandleMessage processes one arbiter-directed message. Only Acceptance
// matters; everything else is ignored.
func (l *Learner[V]) HandleMessage(ctx context.Context, m Msg[V]) {
	if m.Type != Acceptance {
		return
	}
	acc, err := m.ExtractAcceptance()
	if err != nil {
		l.transport.ReportError(l.uid, err)
		return
	}
	// The stringifier is the externally supplied equality witness; two
	// acceptances agree iff both components of the key match.
	key := acc.SID.String() + "|" + l.api.StringifyValue(acc.Value)
	l.mu.Lock()
	l.counts[key]++
	fire := l.counts[key] == l.majority && !l.declared
	if fire {
		l.declared = true
	}
	l.mu.Unlock()
	if !fire {
		return
	}
	l.logger.Printf("majority of acceptances for %v, declaring final value", acc.SID)
	if err := l.api.DeclareFinalValue(ctx, acc.Value); err != nil {
		// Not retried: the declaration may have partially landed and
		// idempotence is the external API's concern.
		l.logger.Printf("declare final value failed: %v", err)
	}
	if err := l.transport.Broadcast(ctx, NewSuccess(acc.Value)); err != nil {
		l.transport.ReportError(l.uid, fmt.Errorf("broadcasting success: %w", err))
	}
}
