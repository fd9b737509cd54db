package runtime

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"sync"
)

type session struct {
	connection domain.Connection
	sink       contract.EventSink
}

// Registry owns every live connection and the sink its events are
// delivered to. Each connection only ever mutates its own record, so a
// single RWMutex is enough; rooms are locked elsewhere.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnectionID]*session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ConnectionID]*session)}
}

// Register creates the connection record. Registering an id twice replaces
// the previous record and sink.
func (r *Registry) Register(id domain.ConnectionID, displayName string, sink contract.EventSink) domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := domain.Connection{ID: id, DisplayName: displayName}
	r.sessions[id] = &session{connection: conn, sink: sink}
	return conn
}

// SetLanguage is a no-op for an unknown id: the connection may have raced
// with its own disconnect.
func (r *Registry) SetLanguage(id domain.ConnectionID, lang domain.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.connection.Language = &lang
	}
}

func (r *Registry) SetRoom(id domain.ConnectionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.connection.Room = roomID
	}
}

func (r *Registry) Resolve(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return domain.Connection{}, false
	}
	return s.connection, true
}

func (r *Registry) Sink(id domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// Unregister removes the connection and returns the removed record.
// Only the first of several concurrent callers gets ok == true.
func (r *Registry) Unregister(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return domain.Connection{}, false
	}
	delete(r.sessions, id)
	return s.connection, true
}

// DisplayNames resolves ids to display names, skipping ids that are gone.
func (r *Registry) DisplayNames(ids []domain.ConnectionID) map[domain.ConnectionID]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make(map[domain.ConnectionID]string, len(ids))
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			names[id] = s.connection.DisplayName
		}
	}
	return names
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
