package runtime

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"collab-lab/observability"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
)

type roomEntry struct {
	mu   sync.Mutex
	room *domain.Room
}

// RoomStore owns every Room. The map is guarded by mu, each room by its
// own mutex so rooms never contend with each other. Rooms live for the
// whole process lifetime.
type RoomStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	rooms   map[domain.RoomID]*roomEntry
	storage contract.IRoomStorage
	metrics *observability.Metrics
}

func NewRoomStore(log *slog.Logger, storage contract.IRoomStorage, metrics *observability.Metrics) *RoomStore {
	return &RoomStore{
		log:     log,
		rooms:   make(map[domain.RoomID]*roomEntry),
		storage: storage,
		metrics: metrics,
	}
}

// EnsureRoom creates the room on first use and reports whether it did.
// A failure to create the room's storage directory is logged only.
func (s *RoomStore) EnsureRoom(_ context.Context, roomID domain.RoomID) bool {
	s.mu.Lock()
	if _, ok := s.rooms[roomID]; ok {
		s.mu.Unlock()
		return false
	}
	s.rooms[roomID] = &roomEntry{room: domain.NewRoom(roomID)}
	s.mu.Unlock()

	s.metrics.Rooms.Inc()
	if err := s.storage.CreateRoomStorage(roomID); err != nil {
		s.log.Error("Could not create storage for room", "room", roomID, "error", err)
	}
	s.log.Info("Room created", "room", roomID)
	return true
}

// Dispatch runs fn inside the room's exclusive section. It returns false,
// without calling fn, when the room does not exist. fn must not call back
// into the store for the same room.
func (s *RoomStore) Dispatch(roomID domain.RoomID, fn func(room *domain.Room)) bool {
	s.mu.RLock()
	entry, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.room)
	return true
}

func (s *RoomStore) Snapshot(roomID domain.RoomID) (domain.Snapshot, bool) {
	var snapshot domain.Snapshot
	ok := s.Dispatch(roomID, func(room *domain.Room) {
		snapshot = room.Snapshot()
	})
	return snapshot, ok
}

func (s *RoomStore) AppendDraw(roomID domain.RoomID, evt json.RawMessage) {
	s.Dispatch(roomID, func(room *domain.Room) {
		room.AppendDraw(evt)
	})
}

func (s *RoomStore) GetCodeBuffer(roomID domain.RoomID, lang domain.Language) string {
	var code string
	s.Dispatch(roomID, func(room *domain.Room) {
		code = room.CodeBuffer(lang)
	})
	return code
}

func (s *RoomStore) SetCodeBuffer(roomID domain.RoomID, lang domain.Language, code string) {
	s.Dispatch(roomID, func(room *domain.Room) {
		room.SetCodeBuffer(lang, code)
	})
}

func (s *RoomStore) GetArbitrationState(roomID domain.RoomID, lang domain.Language) (domain.ArbitrationState, bool) {
	var (
		state domain.ArbitrationState
		found bool
	)
	s.Dispatch(roomID, func(room *domain.Room) {
		state, found = room.Arbitration(lang)
	})
	return state, found
}

func (s *RoomStore) SetArbitrationState(roomID domain.RoomID, lang domain.Language, state domain.ArbitrationState) {
	s.Dispatch(roomID, func(room *domain.Room) {
		room.SetArbitration(lang, state)
	})
}

func (s *RoomStore) AddMember(roomID domain.RoomID, id domain.ConnectionID) {
	s.Dispatch(roomID, func(room *domain.Room) {
		room.AddMember(id)
	})
}

func (s *RoomStore) RemoveMember(roomID domain.RoomID, id domain.ConnectionID) bool {
	var removed bool
	s.Dispatch(roomID, func(room *domain.Room) {
		removed = room.RemoveMember(id)
	})
	return removed
}

func (s *RoomStore) ListMembers(roomID domain.RoomID) []domain.ConnectionID {
	var members []domain.ConnectionID
	s.Dispatch(roomID, func(room *domain.Room) {
		members = room.Members()
	})
	return members
}

// Rooms returns a summary of every room, sorted by id.
func (s *RoomStore) Rooms() []domain.RoomSummary {
	s.mu.RLock()
	ids := make([]domain.RoomID, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	summaries := make([]domain.RoomSummary, 0, len(ids))
	for _, id := range ids {
		s.Dispatch(id, func(room *domain.Room) {
			summaries = append(summaries, room.Summary())
		})
	}
	return summaries
}
