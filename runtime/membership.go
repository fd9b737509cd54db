package runtime

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/observability"
	"context"
	"log/slog"
	"slices"
)

// Membership handles joins and both kinds of disconnect.
type Membership struct {
	log      *slog.Logger
	registry *Registry
	store    *RoomStore
	fanout   *Fanout
	history  contract.IMessageRepository
	metrics  *observability.Metrics
}

func NewMembership(log *slog.Logger, registry *Registry, store *RoomStore, fanout *Fanout,
	history contract.IMessageRepository, metrics *observability.Metrics) *Membership {
	return &Membership{
		log:      log,
		registry: registry,
		store:    store,
		fanout:   fanout,
		history:  history,
		metrics:  metrics,
	}
}

// Join registers the connection, adds it to the room (creating the room if
// needed), replays the room state privately and sends the full roster to
// everyone in the room, the joiner included.
func (m *Membership) Join(ctx context.Context, id domain.ConnectionID, cmd domain.JoinCommand, sink contract.EventSink) {
	m.registry.Register(id, cmd.DisplayName, sink)
	m.registry.SetRoom(id, cmd.Room)
	m.metrics.Connections.Inc()
	m.store.EnsureRoom(ctx, cmd.Room)

	history := m.recentMessages(cmd.Room)

	m.store.Dispatch(cmd.Room, func(room *domain.Room) {
		room.AddMember(id)
		m.fanout.Unicast(ctx, id, event.RoomState(room.Snapshot()))
		if len(history) > 0 {
			m.fanout.Unicast(ctx, id, event.FromMessages(history))
		}

		members := room.Members()
		roster := event.NewMember(m.registry.DisplayNames(members))
		m.fanout.BroadcastTo(ctx, members, roster, "")
	})
	m.log.Info("Connection joined room", "connection", id, "room", cmd.Room, "name", cmd.DisplayName)
}

// Leave is shared by transport loss and explicit disconnects. It returns
// false when the connection was already gone, in which case nothing is sent.
func (m *Membership) Leave(ctx context.Context, id domain.ConnectionID) bool {
	conn, ok := m.registry.Unregister(id)
	if !ok {
		return false
	}
	m.metrics.Connections.Dec()
	if !conn.InRoom() {
		return true
	}

	m.store.Dispatch(conn.Room, func(room *domain.Room) {
		if !room.RemoveMember(id) {
			return
		}
		m.fanout.BroadcastTo(ctx, room.Members(), event.MemberLeave{
			ID:       id,
			UserName: conn.DisplayName,
		}, id)
	})
	m.log.Info("Connection left room", "connection", id, "room", conn.Room)
	return true
}

// recentMessages returns the latest chat messages, oldest first.
func (m *Membership) recentMessages(roomID domain.RoomID) []domain.Message {
	messages, _, err := m.history.GetMessages(roomID, nil)
	if err != nil {
		m.log.Error("Could not load chat history", "room", roomID, "error", err)
		return nil
	}
	slices.Reverse(messages)
	return messages
}
