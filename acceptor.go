package paxos

import (
	"context"
	"fmt"
	"log"
)

// Acceptor is the voter role. It reacts to PermitRequest and Suggestion
// messages using the two durable slots in its stable store and never
// initiates traffic of its own.
//
// Both handlers persist before they emit: a voter that has told a suggester
// "granted" or the arbiters "accepted" must still remember that across a
// crash, so the store write happens first and a failed write suppresses the
// reply entirely.
type Acceptor[V any] struct {
	uid       string
	transport Transport[V]
	store     StableStore[V]
	logger    *log.Logger
}

// NewAcceptor creates a voter for uid on the given transport and store.
func NewAcceptor[V any](uid string, transport Transport[V], store StableStore[V], logger *log.Logger) *Acceptor[V] {
	return &Acceptor[V]{uid: uid, transport: transport, store: store, logger: logger}
}

// HandleMessage processes one voter-directed message. Messages with other
// tags are ignored so the node dispatch can fan the same stream at several
// roles.
func (a *Acceptor[V]) HandleMessage(ctx context.Context, m Msg[V]) {
	switch m.Type {
	case PermitRequest:
		req, err := m.ExtractPermitRequest()
		if err != nil {
			a.transport.ReportError(a.uid, err)
			return
		}
		a.handlePermitRequest(ctx, req)
	case Suggestion:
		sug, err := m.ExtractSuggestion()
		if err != nil {
			a.transport.ReportError(a.uid, err)
			return
		}
		a.handleSuggestion(ctx, sug)
	}
}

// handlePermitRequest grants permission iff the requested id is higher than
// every id granted before, persisting the new high-water mark first. Losing
// requests get a Nack naming the id that beat them.
func (a *Acceptor[V]) handlePermitRequest(ctx context.Context, req PermitRequestData) {
	granted, ok, err := a.store.LastGranted(ctx, a.uid)
	if err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("reading last granted: %w", err))
		return
	}
	if ok && !req.SID.After(granted) {
		a.logger.Printf("NACK permit %v: already granted %v", req.SID, granted)
		a.reply(ctx, req.SenderID, NewNack[V](req.SID, granted))
		return
	}
	if err := a.store.StoreLastGranted(ctx, a.uid, req.SID); err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("storing last granted: %w", err))
		return
	}
	last, err := a.store.LastAccepted(ctx, a.uid)
	if err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("reading last accepted: %w", err))
		return
	}
	a.logger.Printf("granting permit %v to %v", req.SID, req.SenderID)
	a.reply(ctx, req.SenderID, NewPermitGranted(req.SID, last))
}

// handleSuggestion accepts iff the suggestion's id is at least the granted
// high-water mark. Accepting persists lastAccepted, raises lastGranted to
// the accepted id, then announces the acceptance to every arbiter.
func (a *Acceptor[V]) handleSuggestion(ctx context.Context, sug SuggestionData[V]) {
	granted, ok, err := a.store.LastGranted(ctx, a.uid)
	if err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("reading last granted: %w", err))
		return
	}
	if ok && !sug.SID.GreaterThan(granted) {
		a.logger.Printf("NACK suggestion %v: already granted %v", sug.SID, granted)
		a.reply(ctx, sug.SenderID, NewNack[V](sug.SID, granted))
		return
	}
	prev, err := a.store.LastAccepted(ctx, a.uid)
	if err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("reading last accepted: %w", err))
		return
	}
	if prev != nil && prev.SID.After(sug.SID) {
		// Accepting here would roll the durable record backwards. The
		// granted gate makes this unreachable; corrupt state outranks
		// availability, so stop the process rather than serve it.
		panic(fmt.Sprintf("paxos: acceptor %s would overwrite accepted %v with lower %v", a.uid, prev.SID, sug.SID))
	}
	if err := a.store.StoreLastAccepted(ctx, a.uid, LastAccepted[V]{SID: sug.SID, Value: sug.Value}); err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("storing last accepted: %w", err))
		return
	}
	if sug.SID.After(granted) {
		if err := a.store.StoreLastGranted(ctx, a.uid, sug.SID); err != nil {
			a.transport.ReportError(a.uid, fmt.Errorf("storing last granted: %w", err))
			return
		}
	}
	a.logger.Printf("accepted %v from %v", sug.SID, sug.SenderID)
	if err := a.transport.Broadcast(ctx, NewAcceptance(sug.SID, sug.Value)); err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("broadcasting acceptance: %w", err))
	}
}

// reply unicasts a response; a dropped reply is equivalent to a partition
// and another round recovers, so failures only go to the error stream.
func (a *Acceptor[V]) reply(ctx context.Context, target string, m Msg[V]) {
	if err := a.transport.Send(ctx, target, m); err != nil {
		a.transport.ReportError(a.uid, fmt.Errorf("replying %v to %v: %w", m.Type, target, err))
	}
}
