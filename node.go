package paxos

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

func init() {
	log.SetFlags(log.Lshortfile)
}

// Config carries the recognized node options.
type Config struct {
	// QuorumSize is the total number of voters in the quorum.
	QuorumSize int
	// TakeCutoff bounds the per-round batch windows for permit-granted and
	// nack grouping.
	TakeCutoff time.Duration
	// DelayBeforeClaimingLeadership is the inbound-silence threshold after
	// which an idle node fires its own try-permission trigger.
	DelayBeforeClaimingLeadership time.Duration
	// Majority overrides the default floor(n/2)+1 majority when non-nil.
	Majority func(quorumSize int) int
	// Retry shapes the suggester's round cadence; nil means no delay.
	Retry RetryCoordinator
	// Logger receives the node's diagnostics; nil means a uid-prefixed
	// logger on stderr.
	Logger *log.Logger
}

// Node is one participant in an agreement instance: a suggester, a voter
// and an arbiter sharing a single uid, wired to the transport by one
// dispatch loop so every handler for the uid runs non-overlapping.
type Node[V any] struct {
	uid       string
	transport Transport[V]
	config    Config

	proposer *Proposer[V]
	acceptor *Acceptor[V]
	learner  *Learner[V]
	logger   *log.Logger

	electionDelay time.Duration
	done          chan struct{}
	closeOnce     sync.Once
	bound         bool
	mu            sync.Mutex
}

// NewNode assembles a node from its collaborators. Missing collaborators
// and nonsensical options are configuration errors and fail here, before
// any binding is made.
func NewNode[V any](uid string, transport Transport[V], store StableStore[V], api API[V], config Config) (*Node[V], error) {
	if transport == nil {
		return nil, ErrMissingTransport
	}
	if store == nil {
		return nil, ErrMissingStore
	}
	if api == nil {
		return nil, ErrMissingAPI
	}
	if uid == "" {
		return nil, fmt.Errorf("paxos: node uid must not be empty")
	}
	if config.QuorumSize < 1 {
		return nil, ErrBadQuorum
	}
	if config.TakeCutoff <= 0 {
		return nil, ErrBadCutoff
	}
	majority := DefaultMajority(config.QuorumSize)
	if config.Majority != nil {
		majority = config.Majority(config.QuorumSize)
	}
	if majority < 1 || majority > config.QuorumSize {
		return nil, fmt.Errorf("paxos: majority %d out of range for quorum %d", majority, config.QuorumSize)
	}
	retry := config.Retry
	if retry == nil {
		retry = NoopRetryCoordinator{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, uid+" ", log.Lshortfile)
	}
	n := &Node[V]{
		uid:           uid,
		transport:     transport,
		config:        config,
		logger:        logger,
		electionDelay: config.DelayBeforeClaimingLeadership,
		done:          make(chan struct{}),
	}
	n.proposer = NewProposer[V](uid, transport, api, majority, config.TakeCutoff, retry, logger)
	n.acceptor = NewAcceptor[V](uid, transport, store, logger)
	n.learner = NewLearner[V](uid, transport, api, majority, logger)
	return n, nil
}

// UID returns the node's identity.
func (n *Node[V]) UID() string { return n.uid }

// Learner exposes the arbiter role, mainly so callers can observe whether a
// final value has been declared.
func (n *Node[V]) Learner() *Learner[V] { return n.learner }

// SetupBindings subscribes the node's inbound stream once and starts the
// dispatch loop and the suggester's round loop. Calling it twice is an
// error; the subscription graph is wired exactly once per node lifetime.
func (n *Node[V]) SetupBindings() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bound {
		return fmt.Errorf("paxos: node %s already bound", n.uid)
	}
	in := n.transport.Receive(n.uid)
	if in == nil {
		return fmt.Errorf("paxos: transport has no inbound stream for %s", n.uid)
	}
	n.bound = true
	n.proposer.Start()
	go n.run(in)
	return nil
}

// CommenceDecisionProcess fires one round immediately. It is additive with
// the self-election timer: the timer stays armed and fires again if the
// cluster goes quiet.
func (n *Node[V]) CommenceDecisionProcess() {
	n.proposer.SendFirstPermissionRequest()
}

// Close tears down every subscription the node holds. Idempotent.
func (n *Node[V]) Close() {
	n.closeOnce.Do(func() {
		close(n.done)
		n.proposer.Close()
	})
}

// run is the node's single dispatch loop. The self-election timer rearms on
// every voter- or arbiter-directed message; when it fires after a silent
// stretch, the node claims leadership by triggering its own suggester.
func (n *Node[V]) run(in <-chan Msg[V]) {
	var election *time.Timer
	var electionC <-chan time.Time
	if n.electionDelay > 0 {
		election = time.NewTimer(n.electionDelay)
		electionC = election.C
		defer election.Stop()
	}
	ctx := context.Background()
	for {
		select {
		case <-n.done:
			return
		case <-electionC:
			n.logger.Printf("no inbound traffic for %v, claiming leadership", n.electionDelay)
			n.proposer.SendFirstPermissionRequest()
			election.Reset(n.electionDelay)
		case m, ok := <-in:
			if !ok {
				return
			}
			n.dispatch(ctx, m, election)
		}
	}
}

// dispatch validates one message and fans it at the roles its case
// concerns. Shape errors are discarded onto the error stream; they never
// crash the loop.
func (n *Node[V]) dispatch(ctx context.Context, m Msg[V], election *time.Timer) {
	if err := m.validate(); err != nil {
		n.transport.ReportError(n.uid, err)
		return
	}
	switch m.Type {
	case PermitRequest, Suggestion:
		// Voter-directed traffic counts against self-election silence.
		n.resetElection(election)
		n.acceptor.HandleMessage(ctx, m)
	case Acceptance:
		n.resetElection(election)
		n.learner.HandleMessage(ctx, m)
	case PermitGranted, Nack:
		n.proposer.HandleMessage(ctx, m)
	case Success:
		n.proposer.HandleMessage(ctx, m)
	}
}

func (n *Node[V]) resetElection(election *time.Timer) {
	if election == nil {
		return
	}
	if !election.Stop() {
		select {
		case <-election.C:
		default:
		}
	}
	election.Reset(n.electionDelay)
}
