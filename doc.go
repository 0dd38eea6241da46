// paxos is an implementation of classical single-decree Paxos. It provides
// the agreement state machines for the three roles, Proposer (suggester),
// Acceptor (voter) and Learner (arbiter), and the message-processing node
// that composes them into a participant of one agreement instance.
//
// The value under agreement is generic. The library never interprets it
// beyond the equality witness supplied by the arbiter API, so any type that
// survives the chosen wire codec can be agreed on.
//
// Transport and durable storage are collaborator contracts: the library
// ships an in-memory participant registry and stores suitable for tests and
// single-process clusters, and callers plug in real networks and disks by
// implementing Transport and StableStore.
//
// Noticibly Absent: liveness guarantees. Classical Paxos may livelock under
// adversarial timing; dueling suggesters can preempt each other forever.
// Only safety is guaranteed: across any execution at most one value is ever
// declared final.
//
// References:
//
// - Paxos Made Simple - Lamport
//
// - The Part-Time Parliament - Lamport
//
// - http://en.wikipedia.org/wiki/Paxos_%28computer_science%29
package paxos
