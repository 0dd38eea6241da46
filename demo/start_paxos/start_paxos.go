package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	paxos "github.com/protoman92/classicpaxos"
)

// demoAPI feeds each suggester a value derived from its uid and reports the
// first declared value on a channel.
type demoAPI struct {
	declared chan string
}

func (a *demoAPI) FirstSuggestionValue(uid string) string { return "value-from-" + uid }
func (a *demoAPI) StringifyValue(v string) string         { return v }

func (a *demoAPI) DeclareFinalValue(ctx context.Context, v string) error {
	select {
	case a.declared <- v:
	default:
	}
	return nil
}

func main() {
	nodes := flag.Int("nodes", 5, "number of participants in the quorum")
	cutoff := flag.Duration("cutoff", 100*time.Millisecond, "per-round batch window")
	election := flag.Duration("election", 500*time.Millisecond, "silence before a node claims leadership")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to wait for agreement")
	verbose := flag.Bool("v", false, "log protocol traffic")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	uids := make([]string, *nodes)
	for i := range uids {
		uids[i] = fmt.Sprintf("node-%d", i)
	}
	api := &demoAPI{declared: make(chan string, *nodes)}
	coord := paxos.NewCoordinator[string]()
	inst, err := coord.CreateInstance("demo", uids, paxos.NewMemoryStore[string](), api, paxos.Config{
		QuorumSize:                    *nodes,
		TakeCutoff:                    *cutoff,
		DelayBeforeClaimingLeadership: *election,
		Retry:                         paxos.ExponentialBackoffRetryCoordinator{},
	})
	if err != nil {
		log.SetOutput(flag.CommandLine.Output())
		log.Fatalln("Error Creating Instance:", err)
	}
	defer coord.CloseAll()
	if err := inst.Start(); err != nil {
		log.SetOutput(flag.CommandLine.Output())
		log.Fatalln("Error Starting Instance:", err)
	}
	// Kick the first suggester; the self-election timers stay armed behind
	// it in case its round stalls.
	inst.Nodes()[0].CommenceDecisionProcess()

	select {
	case v := <-api.declared:
		fmt.Println("agreed on:", v)
	case <-time.After(*timeout):
		fmt.Println("no agreement within", *timeout)
	}
}
