package paxos

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

// testAPI is the collaborator API used across the suite: free values derive
// from the asking uid and every declaration is recorded.
type testAPI struct {
	mu       sync.Mutex
	declared []string
}

func (a *testAPI) FirstSuggestionValue(uid string) string { return "free-" + uid }

func (a *testAPI) StringifyValue(v string) string { return v }

func (a *testAPI) DeclareFinalValue(ctx context.Context, v string) error {
	a.mu.Lock()
	a.declared = append(a.declared, v)
	a.mu.Unlock()
	return nil
}

func (a *testAPI) values() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.declared))
	copy(out, a.declared)
	return out
}

func distinct(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// recv pulls the next message from an inbox, failing the test on timeout.
func recv(t *testing.T, ch <-chan Msg[string], timeout time.Duration) Msg[string] {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a message")
		return Msg[string]{}
	}
}

// recvType pulls messages until one carries the wanted tag, failing the
// test on timeout.
func recvType(t *testing.T, ch <-chan Msg[string], want MsgType, timeout time.Duration) Msg[string] {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case m := <-ch:
			if m.Type == want {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %v message", want)
			return Msg[string]{}
		}
	}
}

// expectQuiet fails the test if a message with the given tag shows up
// within the window.
func expectQuiet(t *testing.T, ch <-chan Msg[string], tag MsgType, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case m := <-ch:
			if m.Type == tag {
				t.Fatalf("unexpected %v message: %+v", tag, m)
			}
		case <-deadline:
			return
		}
	}
}
