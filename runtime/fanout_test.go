package runtime

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	cerrors "collab-lab/errors"
	"collab-lab/mocks"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFanout_BroadcastSkipsExcept(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	h := newHarness(t, 2*time.Second)
	h.store.EnsureRoom(context.Background(), "r1")

	alice := mocks.NewMockEventSink(ctrl)
	bob := mocks.NewMockEventSink(ctrl)
	h.registry.Register("c1", "alice", alice)
	h.registry.Register("c2", "bob", bob)
	h.store.AddMember("r1", "c1")
	h.store.AddMember("r1", "c2")

	evt := event.CodeResponse{Code: "x"}

	// Given only bob expects the event
	bob.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	// When alice is excluded
	h.fanout.Broadcast(context.Background(), "r1", evt, "c1")

	req.Zero(testutil.ToFloat64(h.metrics.DroppedEvents.WithLabelValues(evt.Name())))
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	h := newHarness(t, 2*time.Second)

	slow := mocks.NewMockEventSink(ctrl)
	fast := mocks.NewMockEventSink(ctrl)
	h.registry.Register("slow", "slow", slow)
	h.registry.Register("fast", "fast", fast)

	evt := event.NewFilesList{"a.txt"}

	// Given a sink that rejects and a healthy one
	slow.EXPECT().Consume(gomock.Any(), evt).Return(cerrors.ErrSinkFull)
	fast.EXPECT().Consume(gomock.Any(), evt).Return(nil)

	h.fanout.BroadcastTo(context.Background(), []domain.ConnectionID{"slow", "fast"}, evt, "")

	// Then the loss is counted once
	req.Equal(1.0, testutil.ToFloat64(h.metrics.DroppedEvents.WithLabelValues(evt.Name())))
}

func TestFanout_SinkTimeoutIsApplied(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	h := newHarness(t, 2*time.Second)
	h.fanout.sinkTimeout = 20 * time.Millisecond

	sink := mocks.NewMockEventSink(ctrl)
	h.registry.Register("c1", "alice", sink)

	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ event.Event) error {
			_, hasDeadline := ctx.Deadline()
			req.True(hasDeadline)
			<-ctx.Done()
			return ctx.Err()
		})

	start := time.Now()
	h.fanout.Unicast(context.Background(), "c1", event.CodeResponse{})
	req.Less(time.Since(start), time.Second)
}

func TestFanout_UnknownConnectionIsSkipped(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	h.fanout.Unicast(context.Background(), "ghost", event.CodeResponse{})
}
