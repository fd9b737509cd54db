// Package domain contains core concepts of the collaboration system.
// Types here hold state and invariants only; locking, transport and
// delivery belong to the runtime.
package domain

import (
	"encoding/json"
	"regexp"
	"slices"
	"time"

	"github.com/samber/lo"
)

type RoomID string

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Valid reports whether the id is safe to use as a directory name.
func (id RoomID) Valid() bool {
	return roomIDPattern.MatchString(string(id))
}

// ArbitrationState records the last accepted edit for a (room, language) pair.
type ArbitrationState struct {
	Timestamp time.Time
	Owner     ConnectionID
	OwnerName string
}

// Snapshot is what a newly joined connection needs to rebuild the room locally.
type Snapshot struct {
	Whiteboard []json.RawMessage   `json:"whiteboard"`
	Code       map[Language]string `json:"code"`
}

type RoomSummary struct {
	ID               RoomID     `json:"id"`
	Members          int        `json:"members"`
	WhiteboardEvents int        `json:"whiteboardEvents"`
	Languages        []Language `json:"languages"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Room is not safe for concurrent use. The room store owns every Room and
// serializes access to it.
type Room struct {
	ID          RoomID
	CreatedAt   time.Time
	whiteboard  []json.RawMessage
	code        map[Language]string
	arbitration map[Language]ArbitrationState
	members     map[ConnectionID]struct{}
}

func NewRoom(id RoomID) *Room {
	return &Room{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		whiteboard:  make([]json.RawMessage, 0),
		code:        make(map[Language]string),
		arbitration: make(map[Language]ArbitrationState),
		members:     make(map[ConnectionID]struct{}),
	}
}

// AppendDraw stores a whiteboard event; the log is append-only and
// replayed in full to every new joiner.
func (r *Room) AppendDraw(evt json.RawMessage) {
	r.whiteboard = append(r.whiteboard, evt)
}

// Snapshot returns copies, callers can hand it to another goroutine.
func (r *Room) Snapshot() Snapshot {
	whiteboard := make([]json.RawMessage, len(r.whiteboard))
	copy(whiteboard, r.whiteboard)
	code := make(map[Language]string, len(r.code))
	for lang, text := range r.code {
		code[lang] = text
	}
	return Snapshot{Whiteboard: whiteboard, Code: code}
}

// CodeBuffer returns an empty string for a language nobody has written yet.
func (r *Room) CodeBuffer(lang Language) string {
	return r.code[lang]
}

func (r *Room) SetCodeBuffer(lang Language, text string) {
	r.code[lang] = text
}

func (r *Room) Arbitration(lang Language) (ArbitrationState, bool) {
	state, ok := r.arbitration[lang]
	return state, ok
}

func (r *Room) SetArbitration(lang Language, state ArbitrationState) {
	r.arbitration[lang] = state
}

func (r *Room) AddMember(id ConnectionID) {
	r.members[id] = struct{}{}
}

// RemoveMember reports whether id was a member.
func (r *Room) RemoveMember(id ConnectionID) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

func (r *Room) HasMember(id ConnectionID) bool {
	_, ok := r.members[id]
	return ok
}

func (r *Room) Members() []ConnectionID {
	return lo.Keys(r.members)
}

func (r *Room) Summary() RoomSummary {
	languages := lo.Keys(r.code)
	slices.Sort(languages)
	return RoomSummary{
		ID:               r.ID,
		Members:          len(r.members),
		WhiteboardEvents: len(r.whiteboard),
		Languages:        languages,
		CreatedAt:        r.CreatedAt,
	}
}
