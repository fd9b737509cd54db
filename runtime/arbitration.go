package runtime

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/observability"
	"context"
	"log/slog"
	"time"
)

type Outcome int

const (
	// Ignored means the room does not exist or the proposer is not one of
	// its members.
	Ignored Outcome = iota
	Accepted
	Rejected
)

type Decision struct {
	Outcome Outcome
	// Owner and Code describe the buffer after arbitration: the proposer
	// and its text on accept, the current owner and authoritative text on
	// reject.
	Owner     domain.ConnectionID
	OwnerName string
	Code      string
}

// Arbiter resolves concurrent code edits with bounded-staleness
// last-writer-wins and self-priority. For one (room, language):
//   - the first proposal is always accepted;
//   - the current owner is always accepted, however recent its last edit;
//   - anyone else is accepted only once grace has elapsed since the last
//     accepted edit, and is sent the authoritative buffer otherwise.
type Arbiter struct {
	log      *slog.Logger
	registry *Registry
	store    *RoomStore
	fanout   *Fanout
	grace    time.Duration
	metrics  *observability.Metrics
}

func NewArbiter(log *slog.Logger, registry *Registry, store *RoomStore, fanout *Fanout,
	grace time.Duration, metrics *observability.Metrics) *Arbiter {
	return &Arbiter{
		log:      log,
		registry: registry,
		store:    store,
		fanout:   fanout,
		grace:    grace,
		metrics:  metrics,
	}
}

// Propose arbitrates p. Reading the previous state, committing and
// broadcasting all happen inside the room's exclusive section, so two
// near-simultaneous proposals can never both see a stale owner.
func (a *Arbiter) Propose(ctx context.Context, p domain.EditProposal) Decision {
	proposer, _ := a.registry.Resolve(p.Proposer)
	decision := Decision{Outcome: Ignored}

	a.store.Dispatch(p.Room, func(room *domain.Room) {
		// The proposer may have left between resolving and locking the room.
		if !room.HasMember(p.Proposer) {
			return
		}
		prev, found := room.Arbitration(p.Language)
		if !found || p.ReceivedAt.Sub(prev.Timestamp) > a.grace || prev.Owner == p.Proposer {
			room.SetCodeBuffer(p.Language, p.Code)
			room.SetArbitration(p.Language, domain.ArbitrationState{
				Timestamp: p.ReceivedAt,
				Owner:     p.Proposer,
				OwnerName: proposer.DisplayName,
			})
			a.fanout.BroadcastTo(ctx, room.Members(), event.ChangedCode{
				UserName: proposer.DisplayName,
				Lang:     p.Language,
				Code:     p.Code,
			}, p.Proposer)
			decision = Decision{
				Outcome:   Accepted,
				Owner:     p.Proposer,
				OwnerName: proposer.DisplayName,
				Code:      p.Code,
			}
			return
		}

		authoritative := room.CodeBuffer(p.Language)
		a.fanout.Unicast(ctx, p.Proposer, event.ChangedCode{
			UserName: prev.OwnerName,
			Lang:     p.Language,
			Code:     authoritative,
		})
		decision = Decision{
			Outcome:   Rejected,
			Owner:     prev.Owner,
			OwnerName: prev.OwnerName,
			Code:      authoritative,
		}
	})

	switch decision.Outcome {
	case Accepted:
		a.metrics.Arbitration.WithLabelValues(string(p.Language), observability.OutcomeAccepted).Inc()
	case Rejected:
		a.metrics.Arbitration.WithLabelValues(string(p.Language), observability.OutcomeRejected).Inc()
		a.log.Debug("Code change rejected",
			"room", p.Room, "lang", p.Language, "proposer", p.Proposer, "owner", decision.Owner)
	default:
		a.log.Debug("Code change ignored, unknown room or proposer not a member", "room", p.Room, "proposer", p.Proposer)
	}
	return decision
}

// CodeRequest privately answers with the current buffer, "" when nobody
// has written that language yet.
func (a *Arbiter) CodeRequest(ctx context.Context, id domain.ConnectionID, roomID domain.RoomID, lang domain.Language) {
	a.fanout.Unicast(ctx, id, event.CodeResponse{Code: a.store.GetCodeBuffer(roomID, lang)})
}
