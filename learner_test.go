package paxos

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newLearnerFixture(t *testing.T, majority int) (*Learner[string], *testAPI, *Registry[string]) {
	t.Helper()
	registry := NewRegistry[string]()
	if err := registry.Register("observer"); err != nil {
		t.Fatal(err)
	}
	api := &testAPI{}
	return NewLearner[string]("arbiter", registry, api, majority, discardLogger()), api, registry
}

func TestLearnerDeclaresOnceAtMajority(t *testing.T) {
	l, api, registry := newLearnerFixture(t, 3)
	ctx := context.Background()
	sid := SuggestionID{ID: "p", Integer: 4}
	for i := 0; i < 2; i++ {
		l.HandleMessage(ctx, NewAcceptance(sid, "chosen"))
	}
	if len(api.values()) != 0 {
		t.Fatal("declared before majority")
	}
	l.HandleMessage(ctx, NewAcceptance(sid, "chosen"))
	if got := api.values(); len(got) != 1 || got[0] != "chosen" {
		t.Fatalf("declared %v, want exactly one declaration of chosen", got)
	}
	if !l.Declared() {
		t.Error("arbiter must report itself declared")
	}

	// Further acceptances, same group or new ones, change nothing.
	l.HandleMessage(ctx, NewAcceptance(sid, "chosen"))
	l.HandleMessage(ctx, NewAcceptance(sid.Increment(), "chosen"))
	l.HandleMessage(ctx, NewAcceptance(sid.Increment(), "other"))
	l.HandleMessage(ctx, NewAcceptance(sid.Increment(), "other"))
	l.HandleMessage(ctx, NewAcceptance(sid.Increment(), "other"))
	if got := api.values(); len(got) != 1 {
		t.Errorf("declared %v, want the single original declaration", got)
	}

	success := recvType(t, registry.Receive("observer"), Success, time.Second)
	v, err := success.ExtractSuccess()
	if err != nil {
		t.Fatal(err)
	}
	if v != "chosen" {
		t.Errorf("success carries %q, want chosen", v)
	}
}

func TestLearnerKeepsGroupsApart(t *testing.T) {
	// Acceptances agreeing on the value but not the id, or on the id but
	// not the value, never pool into one group.
	l, api, _ := newLearnerFixture(t, 2)
	ctx := context.Background()
	s1 := SuggestionID{ID: "a", Integer: 1}
	s2 := SuggestionID{ID: "b", Integer: 1}
	l.HandleMessage(ctx, NewAcceptance(s1, "v"))
	l.HandleMessage(ctx, NewAcceptance(s2, "v"))
	l.HandleMessage(ctx, NewAcceptance(s1, "w"))
	if got := api.values(); len(got) != 0 {
		t.Errorf("declared %v from mismatched groups", got)
	}
	l.HandleMessage(ctx, NewAcceptance(s1, "v"))
	if got := api.values(); len(got) != 1 || got[0] != "v" {
		t.Errorf("declared %v, want v once the (s1, v) group fills", got)
	}
}

// failingArbiterAPI reports declaration failure; the learner must log it
// and move on without retrying.
type failingArbiterAPI struct {
	testAPI
	calls int
}

func (a *failingArbiterAPI) DeclareFinalValue(ctx context.Context, v string) error {
	a.calls++
	return errors.New("external store unavailable")
}

func TestLearnerDoesNotRetryFailedDeclaration(t *testing.T) {
	registry := NewRegistry[string]()
	if err := registry.Register("observer"); err != nil {
		t.Fatal(err)
	}
	api := &failingArbiterAPI{}
	l := NewLearner[string]("arbiter", registry, api, 1, discardLogger())
	ctx := context.Background()
	sid := SuggestionID{ID: "p", Integer: 0}
	l.HandleMessage(ctx, NewAcceptance(sid, "v"))
	l.HandleMessage(ctx, NewAcceptance(sid, "v"))
	if api.calls != 1 {
		t.Errorf("declare invoked %d times, want exactly once", api.calls)
	}
	// Success still goes out so suggesters stand down.
	recvType(t, registry.Receive("observer"), Success, time.Second)
}
