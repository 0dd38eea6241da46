package paxos

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Proposer is the suggester role. It drives numbered rounds until some
// arbiter declares success: broadcast a PermitRequest, batch the
// PermitGranted responses for that id inside a takeCutoff window, and on a
// majority broadcast a Suggestion carrying either the highest previously
// accepted value or a fresh one.
//
// Two inputs advance the round number: windows that close under majority
// re-emit the id they were batching, and majority Nack batches contribute
// the highest granted id they report. Both pass a strictly monotone gate
// before the increment, so every id a suggester advances to is strictly
// higher than all ids it used before. A trigger with no advancement pending
// rebroadcasts the most recent id.
type Proposer[V any] struct {
	uid        string
	transport  Transport[V]
	api        SuggesterAPI[V]
	majority   int
	takeCutoff time.Duration
	retry      RetryCoordinator
	logger     *log.Logger

	trigger chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	started   bool
	succeeded bool
	used      bool
	lastUsed  SuggestionID
	gate      SuggestionID
	gateUsed  bool
	next      SuggestionID
	haveNext  bool
	grants    map[string]*grantWindow[V]
	nacks     map[string]*nackWindow
}

// grantWindow batches PermitGranted responses for one suggestion id until
// its cutoff timer fires. Responses arriving after the close are dropped
// with it.
type grantWindow[V any] struct {
	sid       SuggestionID
	responses []*LastAccepted[V]
	closed    bool
}

// nackWindow batches Nack responses for one rejected id, remembering only
// the count and the highest granted id reported.
type nackWindow struct {
	sid     SuggestionID
	highest SuggestionID
	count   int
	closed  bool
}

// NewProposer creates a suggester for uid. majority is the response count a
// window must reach; takeCutoff bounds how long a window stays open; retry
// shapes the cadence of permission attempts.
func NewProposer[V any](uid string, transport Transport[V], api SuggesterAPI[V], majority int, takeCutoff time.Duration, retry RetryCoordinator, logger *log.Logger) *Proposer[V] {
	return &Proposer[V]{
		uid:        uid,
		transport:  transport,
		api:        api,
		majority:   majority,
		takeCutoff: takeCutoff,
		retry:      retry,
		logger:     logger,
		trigger:    make(chan struct{}, 64),
		done:       make(chan struct{}),
		grants:     make(map[string]*grantWindow[V]),
		nacks:      make(map[string]*nackWindow),
	}
}

// Start launches the round loop. It is driven by the try-permission
// trigger, optionally delayed by the retry coordinator, and stops emitting
// rounds once Success has been observed or the suggester is closed.
func (p *Proposer[V]) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()
	out := p.retry.Coordinate(p.done, p.trigger)
	go func() {
		for range out {
			p.runRound(context.Background())
		}
	}()
}

// Close tears the round loop down. Idempotent.
func (p *Proposer[V]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// SendFirstPermissionRequest signals the try-permission trigger, kicking
// the first round. Extra calls after Success are no-ops; extra calls before
// it rebroadcast the most recent id; voters that already granted it answer
// with a Nack.
func (p *Proposer[V]) SendFirstPermissionRequest() {
	p.mu.Lock()
	if p.succeeded {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.tryPermission()
}

// tryPermission is the internal control channel. The node's leadership
// timer and the advancement pathway both feed it.
func (p *Proposer[V]) tryPermission() {
	select {
	case p.trigger <- struct{}{}:
	default:
		// The trigger is buffered well past any realistic signal burst; a
		// full buffer means rounds are already queued, so dropping this
		// signal loses nothing.
		p.logger.Printf("try-permission trigger saturated, dropping signal")
	}
}

// runRound computes the round's suggestion id and broadcasts its
// PermitRequest.
func (p *Proposer[V]) runRound(ctx context.Context) {
	p.mu.Lock()
	if p.succeeded {
		p.mu.Unlock()
		return
	}
	var sid SuggestionID
	switch {
	case !p.used:
		sid = SuggestionID{ID: p.uid, Integer: 0}
	case p.haveNext:
		sid = p.next
		p.haveNext = false
	default:
		sid = p.lastUsed
	}
	p.used = true
	p.lastUsed = sid
	p.mu.Unlock()
	p.logger.Printf("requesting permission under %v", sid)
	if err := p.transport.Broadcast(ctx, NewPermitRequest[V](p.uid, sid)); err != nil {
		p.transport.ReportError(p.uid, fmt.Errorf("broadcasting permit request: %w", err))
	}
}

// HandleMessage processes one suggester-directed message: PermitGranted and
// Nack responses feed their per-id windows, Success ends round activity.
// The handler stays subscribed after success so late Nacks cannot start new
// rounds.
func (p *Proposer[V]) HandleMessage(ctx context.Context, m Msg[V]) {
	switch m.Type {
	case PermitGranted:
		grant, err := m.ExtractPermitGranted()
		if err != nil {
			p.transport.ReportError(p.uid, err)
			return
		}
		p.collectGrant(grant)
	case Nack:
		nack, err := m.ExtractNack()
		if err != nil {
			p.transport.ReportError(p.uid, err)
			return
		}
		p.collectNack(nack)
	case Success:
		p.mu.Lock()
		p.succeeded = true
		p.mu.Unlock()
	}
}

// collectGrant routes a PermitGranted into the window for its id, opening
// the window and arming its cutoff timer on the first response. Responses
// for closed windows are stale rounds and dropped harmlessly.
func (p *Proposer[V]) collectGrant(grant PermitGrantedData[V]) {
	key := grant.SID.String()
	p.mu.Lock()
	w, ok := p.grants[key]
	if !ok {
		w = &grantWindow[V]{sid: grant.SID}
		p.grants[key] = w
		time.AfterFunc(p.takeCutoff, func() { p.closeGrantWindow(key) })
	}
	if w.closed {
		p.mu.Unlock()
		return
	}
	w.responses = append(w.responses, grant.LastAccepted)
	p.mu.Unlock()
}

// closeGrantWindow fires when a grant window's cutoff elapses. A majority
// window proposes; an under-quorum window feeds its id back into the
// advancement pathway so the next round outbids whatever silenced this one.
func (p *Proposer[V]) closeGrantWindow(key string) {
	p.mu.Lock()
	w := p.grants[key]
	if w == nil || w.closed {
		p.mu.Unlock()
		return
	}
	w.closed = true
	if p.succeeded {
		p.mu.Unlock()
		return
	}
	responses := w.responses
	if len(responses) < p.majority {
		p.logger.Printf("window %v closed under quorum with %d grants", w.sid, len(responses))
		p.advanceLocked(w.sid)
		p.mu.Unlock()
		return
	}
	value := p.chooseValue(responses)
	sid := w.sid
	p.mu.Unlock()
	p.logger.Printf("window %v reached majority with %d grants, suggesting", sid, len(responses))
	if err := p.transport.Broadcast(context.Background(), NewSuggestion(p.uid, sid, value)); err != nil {
		p.transport.ReportError(p.uid, fmt.Errorf("broadcasting suggestion: %w", err))
	}
}

// chooseValue applies the highest-accepted rule: when a majority of grants
// carry a previously accepted suggestion, the value under the highest such
// id must be re-proposed; otherwise the suggester is free to introduce its
// own.
func (p *Proposer[V]) chooseValue(responses []*LastAccepted[V]) V {
	accepted := make([]*LastAccepted[V], 0, len(responses))
	for _, r := range responses {
		if r != nil {
			accepted = append(accepted, r)
		}
	}
	if len(accepted) >= p.majority {
		return MaxAccepted(accepted).Value
	}
	return p.api.FirstSuggestionValue(p.uid)
}

// collectNack routes a Nack into the window for the id it rejected,
// tracking the count and the highest granted id across the batch.
func (p *Proposer[V]) collectNack(nack NackData) {
	key := nack.CurrentSID.String()
	p.mu.Lock()
	w, ok := p.nacks[key]
	if !ok {
		w = &nackWindow{sid: nack.CurrentSID}
		p.nacks[key] = w
		time.AfterFunc(p.takeCutoff, func() { p.closeNackWindow(key) })
	}
	if w.closed {
		p.mu.Unlock()
		return
	}
	w.count++
	if nack.LastGrantedSID.GreaterThan(w.highest) {
		w.highest = nack.LastGrantedSID
	}
	p.mu.Unlock()
}

// closeNackWindow fires when a nack window's cutoff elapses. Only a
// majority of rejections advances the round number; scattered Nacks from
// stale rounds are ignored.
func (p *Proposer[V]) closeNackWindow(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.nacks[key]
	if w == nil || w.closed {
		return
	}
	w.closed = true
	if p.succeeded {
		return
	}
	if w.count < p.majority {
		return
	}
	p.logger.Printf("%d nacks for %v, highest granted %v", w.count, w.sid, w.highest)
	p.advanceLocked(w.highest)
}

// advanceLocked feeds a candidate id through the monotone gate and, when it
// passes, schedules the next round under its increment. Callers hold p.mu.
func (p *Proposer[V]) advanceLocked(candidate SuggestionID) {
	if p.gateUsed && !candidate.After(p.gate) {
		return
	}
	p.gate = candidate
	p.gateUsed = true
	p.next = candidate.Increment()
	p.haveNext = true
	p.tryPermission()
}
