package runtime

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/observability"
	"context"
	"log/slog"
	"time"
)

// Fanout delivers events to the sinks of room members.
//
// Delivery is best-effort: a sink that is full, closed or slower than
// sinkTimeout loses the event, and the loss is counted. Sinks are called
// sequentially so that every connection sees events in the order they
// were fanned out.
type Fanout struct {
	log         *slog.Logger
	registry    *Registry
	store       *RoomStore
	sinkTimeout time.Duration
	metrics     *observability.Metrics
}

func NewFanout(log *slog.Logger, registry *Registry, store *RoomStore,
	sinkTimeout time.Duration, metrics *observability.Metrics) *Fanout {
	return &Fanout{
		log:         log,
		registry:    registry,
		store:       store,
		sinkTimeout: sinkTimeout,
		metrics:     metrics,
	}
}

// Broadcast sends evt to every current member of the room except the
// connection named by except; pass "" to include everyone.
// It takes the room lock, so it must not be called from inside
// RoomStore.Dispatch. Use BroadcastTo there.
func (f *Fanout) Broadcast(ctx context.Context, roomID domain.RoomID, evt event.Event, except domain.ConnectionID) {
	f.BroadcastTo(ctx, f.store.ListMembers(roomID), evt, except)
}

// BroadcastTo sends evt to an explicit member list.
func (f *Fanout) BroadcastTo(ctx context.Context, members []domain.ConnectionID, evt event.Event, except domain.ConnectionID) {
	for _, id := range members {
		if id == except {
			continue
		}
		f.deliver(ctx, id, evt)
	}
}

func (f *Fanout) Unicast(ctx context.Context, id domain.ConnectionID, evt event.Event) {
	f.deliver(ctx, id, evt)
}

func (f *Fanout) deliver(ctx context.Context, id domain.ConnectionID, evt event.Event) {
	sink, ok := f.registry.Sink(id)
	if !ok {
		f.log.Debug("No sink for connection, event skipped", "connection", id, "event", evt.Name())
		return
	}

	sinkCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		f.metrics.DroppedEvents.WithLabelValues(evt.Name()).Inc()
		f.log.Warn("Event not delivered", "connection", id, "event", evt.Name(), "error", err)
	}
}
