package paxos

import (
	"context"
	"errors"
)

// Configuration errors are fatal: NewNode refuses to build a node that is
// missing a collaborator or carries a nonsensical option.
var (
	ErrMissingTransport = errors.New("paxos: transport is required")
	ErrMissingStore     = errors.New("paxos: stable store is required")
	ErrMissingAPI       = errors.New("paxos: collaborator API is required")
	ErrBadQuorum        = errors.New("paxos: quorum size must be at least 1")
	ErrBadCutoff        = errors.New("paxos: take cutoff must be positive")
)

// Transport moves messages between participants. Receive hands out the hot
// inbound stream for a uid; Send and Broadcast are fire-and-forget with an
// acknowledgement error. ReportError is the per-uid error stack: transient
// failures inside a node's pipelines land there instead of tearing the
// pipelines down.
type Transport[V any] interface {
	Receive(uid string) <-chan Msg[V]
	Send(ctx context.Context, targetUID string, m Msg[V]) error
	Broadcast(ctx context.Context, m Msg[V]) error
	ReportError(uid string, err error)
}

// StableStore is the durable two-slot record a voter keeps: the highest
// suggestion id it has granted and the last suggestion it has accepted.
// Both slots are per uid and advance monotonically; a store never needs to
// support deletion or rollback. The ok result of LastGranted and the nil
// result of LastAccepted report an empty slot.
type StableStore[V any] interface {
	LastGranted(ctx context.Context, uid string) (SuggestionID, bool, error)
	StoreLastGranted(ctx context.Context, uid string, sid SuggestionID) error
	LastAccepted(ctx context.Context, uid string) (*LastAccepted[V], error)
	StoreLastAccepted(ctx context.Context, uid string, last LastAccepted[V]) error
}

// SuggesterAPI supplies the suggester role with values to propose when no
// prior acceptance constrains the choice.
type SuggesterAPI[V any] interface {
	FirstSuggestionValue(uid string) V
}

// ArbiterAPI is the arbiter role's window to the outside. StringifyValue is
// the equality witness used to group acceptances; it must be injective on
// the values in play (a == b iff stringify(a) == stringify(b)), otherwise
// distinct values could be conflated into a bogus majority.
// DeclareFinalValue is invoked at most once per arbiter; if it fails the
// error is logged and never retried, idempotence being the implementer's
// concern.
type ArbiterAPI[V any] interface {
	StringifyValue(v V) string
	DeclareFinalValue(ctx context.Context, v V) error
}

// API bundles every collaborator contract a full node needs.
type API[V any] interface {
	SuggesterAPI[V]
	ArbiterAPI[V]
}
