package runtime

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMembership_JoinReplaysStateAndRoster(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 2*time.Second)

	// Given alice joins an empty room
	alice := h.join("A1B2", "X", "alice")

	// Then she receives an empty state, then a roster with herself
	events := alice.all()
	req.Len(events, 2)
	state, ok := events[0].(event.RoomState)
	req.True(ok)
	req.Empty(state.Whiteboard)
	req.Empty(state.Code)
	req.Equal(event.NewMember{"X": "alice"}, events[1])

	// When bob joins
	bob := h.join("A1B2", "Y", "bob")

	// Then both receive the full roster
	roster := event.NewMember{"X": "alice", "Y": "bob"}
	req.Equal(roster, alice.named("newMember")[1])
	req.Equal(roster, bob.named("newMember")[0])
	req.Equal(2.0, testutil.ToFloat64(h.metrics.Connections))
}

func TestMembership_JoinReplaysExistingContent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 2*time.Second)
	h.join("r1", "X", "alice")
	h.store.AppendDraw("r1", []byte(`{"x":1}`))
	h.store.SetCodeBuffer("r1", domain.Python, "print(1)")

	at := time.Now().UTC()
	for i, content := range []string{"first", "second"} {
		req.NoError(h.repository.StoreMessage(domain.Message{
			ID: uuid.New(), Room: "r1", Author: "alice", Content: content,
			SentAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	bob := h.join("r1", "Y", "bob")

	state := bob.named("roomState")[0].(event.RoomState)
	req.Len(state.Whiteboard, 1)
	req.Equal(map[domain.Language]string{domain.Python: "print(1)"}, state.Code)

	// History comes oldest first
	history := bob.named("messageHistory")[0].(event.MessageHistory)
	req.Len(history, 2)
	req.Equal("first", history[0].Message)
	req.Equal("second", history[1].Message)
}

func TestMembership_RosterAfterNJoins(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 2*time.Second)

	var last *recordingSink
	expected := event.NewMember{}
	for i := range 10 {
		id := domain.ConnectionID(fmt.Sprintf("c%d", i))
		name := fmt.Sprintf("user-%d", i)
		expected[id] = name
		last = h.join("r1", id, name)
	}

	req.Equal(expected, last.named("newMember")[0])
	req.Len(h.store.ListMembers("r1"), 10)
}

func TestMembership_LeaveIsIdempotent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 2*time.Second)
	alice := h.join("r1", "X", "alice")
	h.join("r1", "Y", "bob")
	h.join("r1", "Z", "clara")
	alice.reset()

	// When bob leaves
	req.True(h.membership.Leave(context.Background(), "Y"))

	// Then the others are told once and the count drops by one
	req.Equal([]event.Event{event.MemberLeave{ID: "Y", UserName: "bob"}}, alice.all())
	req.Len(h.store.ListMembers("r1"), 2)
	req.Equal(2.0, testutil.ToFloat64(h.metrics.Connections))

	// When the same disconnect is seen again (transport loss after explicit disconnect)
	req.False(h.membership.Leave(context.Background(), "Y"))

	// Then nothing changes
	req.Len(alice.all(), 1)
	req.Len(h.store.ListMembers("r1"), 2)
	req.Equal(2.0, testutil.ToFloat64(h.metrics.Connections))
}

func TestMembership_LeaveBeforeJoinCompletes(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 2*time.Second)
	h.registry.Register("c1", "lurker", &recordingSink{})

	req.True(h.membership.Leave(context.Background(), "c1"))
	_, ok := h.registry.Resolve("c1")
	req.False(ok)
}
