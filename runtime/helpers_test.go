package runtime

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/observability"
	"collab-lab/repositories"
	"collab-lab/storage"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *recordingSink) named(name string) []event.Event {
	var res []event.Event
	for _, e := range s.all() {
		if e.Name() == name {
			res = append(res, e)
		}
	}
	return res
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type harness struct {
	log        *slog.Logger
	metrics    *observability.Metrics
	registry   *Registry
	store      *RoomStore
	fanout     *Fanout
	membership *Membership
	arbiter    *Arbiter
	repository repositories.MessageRepository
}

func newHarness(t *testing.T, grace time.Duration) *harness {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	roomStorage, err := storage.NewRoomStorage(t.TempDir(), log)
	require.NoError(t, err)
	db, err := repositories.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repository := repositories.NewMessageRepository(db, log, nil)

	registry := NewRegistry()
	store := NewRoomStore(log, roomStorage, metrics)
	fanout := NewFanout(log, registry, store, time.Second, metrics)
	return &harness{
		log:        log,
		metrics:    metrics,
		registry:   registry,
		store:      store,
		fanout:     fanout,
		membership: NewMembership(log, registry, store, fanout, repository, metrics),
		arbiter:    NewArbiter(log, registry, store, fanout, grace, metrics),
		repository: repository,
	}
}

func (h *harness) join(room domain.RoomID, id domain.ConnectionID, name string) *recordingSink {
	sink := &recordingSink{}
	h.membership.Join(context.Background(), id, domain.JoinCommand{Room: room, DisplayName: name}, sink)
	return sink
}
