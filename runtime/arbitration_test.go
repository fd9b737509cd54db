package runtime

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/observability"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const grace = 2 * time.Second

func propose(h *harness, id domain.ConnectionID, code string, at time.Time) Decision {
	return h.arbiter.Propose(context.Background(), domain.EditProposal{
		Room:       "A1B2",
		Language:   domain.Python,
		Code:       code,
		Proposer:   id,
		ReceivedAt: at,
	})
}

func TestArbiter_FirstProposalAccepted(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	h.join("A1B2", "X", "alice")
	bob := h.join("A1B2", "Y", "bob")
	bob.reset()

	decision := propose(h, "X", "print(1)", time.Now())

	req.Equal(Accepted, decision.Outcome)
	req.Equal("print(1)", h.store.GetCodeBuffer("A1B2", domain.Python))
	req.Equal([]event.Event{event.ChangedCode{UserName: "alice", Lang: domain.Python, Code: "print(1)"}}, bob.all())
}

func TestArbiter_OwnerAlwaysAccepted(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	alice := h.join("A1B2", "X", "alice")
	h.join("A1B2", "Y", "bob")

	t0 := time.Now()
	propose(h, "X", "a", t0)
	alice.reset()

	// Owner edits again and again well inside the window
	for i, code := range []string{"ab", "abc", "abcd"} {
		decision := propose(h, "X", code, t0.Add(time.Duration(i+1)*time.Millisecond))
		req.Equal(Accepted, decision.Outcome)
	}
	req.Equal("abcd", h.store.GetCodeBuffer("A1B2", domain.Python))

	// The proposer never receives its own edit back
	req.Empty(alice.all())
}

func TestArbiter_NonOwnerRejectedWithinGrace(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	alice := h.join("A1B2", "X", "alice")
	bob := h.join("A1B2", "Y", "bob")

	t0 := time.Now()
	propose(h, "X", "print(1)", t0)
	alice.reset()
	bob.reset()

	decision := propose(h, "Y", "print(2)", t0.Add(500*time.Millisecond))

	// Then the buffer is unchanged and bob gets exactly the accepted text
	req.Equal(Rejected, decision.Outcome)
	req.Equal(domain.ConnectionID("X"), decision.Owner)
	req.Equal("print(1)", h.store.GetCodeBuffer("A1B2", domain.Python))
	req.Equal([]event.Event{event.ChangedCode{UserName: "alice", Lang: domain.Python, Code: "print(1)"}}, bob.all())
	req.Empty(alice.all())

	state, _ := h.store.GetArbitrationState("A1B2", domain.Python)
	req.Equal(t0, state.Timestamp)
	req.Equal(1.0, testutil.ToFloat64(h.metrics.Arbitration.WithLabelValues("python", observability.OutcomeRejected)))
}

func TestArbiter_NonOwnerAcceptedAfterGrace(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	alice := h.join("A1B2", "X", "alice")
	h.join("A1B2", "Y", "bob")

	t0 := time.Now()
	propose(h, "X", "print(1)", t0)
	alice.reset()

	// Exactly at the window edge the owner still wins
	req.Equal(Rejected, propose(h, "Y", "print(2)", t0.Add(grace)).Outcome)

	decision := propose(h, "Y", "print(3)", t0.Add(grace+time.Millisecond))
	req.Equal(Accepted, decision.Outcome)
	req.Equal(domain.ConnectionID("Y"), decision.Owner)
	req.Equal([]event.Event{event.ChangedCode{UserName: "bob", Lang: domain.Python, Code: "print(3)"}}, alice.all())
}

func TestArbiter_LanguagesAreIndependent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	h.join("A1B2", "X", "alice")
	h.join("A1B2", "Y", "bob")

	t0 := time.Now()
	propose(h, "X", "print(1)", t0)
	decision := h.arbiter.Propose(context.Background(), domain.EditProposal{
		Room: "A1B2", Language: domain.Java, Code: "class A {}", Proposer: "Y", ReceivedAt: t0,
	})
	req.Equal(Accepted, decision.Outcome)
}

func TestArbiter_RejectNamesDisconnectedOwner(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	h.join("A1B2", "X", "alice")
	bob := h.join("A1B2", "Y", "bob")

	t0 := time.Now()
	propose(h, "X", "print(1)", t0)
	h.membership.Leave(context.Background(), "X")
	bob.reset()

	decision := propose(h, "Y", "print(2)", t0.Add(time.Second))
	req.Equal(Rejected, decision.Outcome)
	req.Equal([]event.Event{event.ChangedCode{UserName: "alice", Lang: domain.Python, Code: "print(1)"}}, bob.all())
}

func TestArbiter_UnknownRoomIgnored(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	req.Equal(Ignored, propose(h, "X", "x", time.Now()).Outcome)
}

func TestArbiter_ProposalAfterLeaveIgnored(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	h.join("A1B2", "X", "alice")
	bob := h.join("A1B2", "Y", "bob")
	t0 := time.Now()
	req.Equal(Accepted, propose(h, "Y", "print(1)", t0).Outcome)

	// Given alice left before her edit reached the room
	h.membership.Leave(context.Background(), "X")
	bob.reset()

	// Then the edit is dropped and the buffer is untouched
	req.Equal(Ignored, propose(h, "X", "print(2)", t0.Add(3*grace)).Outcome)
	req.Equal("print(1)", h.store.GetCodeBuffer("A1B2", domain.Python))
	req.Empty(bob.all())
}

func TestArbiter_ConcurrentNonOwnersOnlyOneWins(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	ids := []domain.ConnectionID{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		h.join("A1B2", id, string(id))
	}

	// When everybody proposes at the same instant on a fresh buffer
	at := time.Now()
	decisions := make(chan Decision, len(ids))
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decisions <- propose(h, id, "from "+string(id), at)
		}()
	}
	wg.Wait()
	close(decisions)

	// Then exactly one is accepted and the buffer holds its text
	var winners []Decision
	for d := range decisions {
		if d.Outcome == Accepted {
			winners = append(winners, d)
		}
	}
	req.Len(winners, 1)
	req.Equal(winners[0].Code, h.store.GetCodeBuffer("A1B2", domain.Python))
}

// The full exchange between alice and bob on a 2s window.
func TestArbiter_Scenario(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	alice := h.join("A1B2", "X", "alice")
	bob := h.join("A1B2", "Y", "bob")
	alice.reset()
	bob.reset()

	t0 := time.Now()
	req.Equal(Accepted, propose(h, "X", "print(1)", t0).Outcome)
	req.Equal(Rejected, propose(h, "Y", "print(2)", t0.Add(500*time.Millisecond)).Outcome)
	req.Equal(Accepted, propose(h, "X", "print(1)\nprint(3)", t0.Add(600*time.Millisecond)).Outcome)

	req.Equal([]event.Event{
		event.ChangedCode{UserName: "alice", Lang: domain.Python, Code: "print(1)"},
		event.ChangedCode{UserName: "alice", Lang: domain.Python, Code: "print(1)"},
		event.ChangedCode{UserName: "alice", Lang: domain.Python, Code: "print(1)\nprint(3)"},
	}, bob.all())
	req.Empty(alice.all())
}

func TestArbiter_CodeRequest(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, grace)
	alice := h.join("A1B2", "X", "alice")
	propose(h, "X", "print(1)", time.Now())
	alice.reset()

	h.arbiter.CodeRequest(context.Background(), "X", "A1B2", domain.Python)
	h.arbiter.CodeRequest(context.Background(), "X", "A1B2", domain.Java)

	req.Equal([]event.Event{event.CodeResponse{Code: "print(1)"}, event.CodeResponse{Code: ""}}, alice.all())
}
