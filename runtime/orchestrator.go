// Package runtime is the session core: connections, rooms, arbitration and
// fanout. Transports feed it decoded commands through ISessionService and
// receive events through their EventSink.
package runtime

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"collab-lab/domain/event"
	cerrors "collab-lab/errors"
	"collab-lab/moderation"
	"collab-lab/observability"
	"collab-lab/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	GraceWindow     time.Duration
	SinkTimeout     time.Duration
	ChatBufferSize  int
	CharReplacement rune
	SearchLimit     int
	MetricInterval  time.Duration
}

// Orchestrator implements contract.ISessionService.
type Orchestrator struct {
	log        *slog.Logger
	cfg        Config
	registry   *Registry
	store      *RoomStore
	fanout     *Fanout
	membership *Membership
	arbiter    *Arbiter
	storage    contract.IRoomStorage
	repository contract.IMessageRepository
	index      contract.IMessageIndex
	executor   contract.IExecutor
	supervisor contract.ISupervisor
	metrics    *observability.Metrics
	chat       chan domain.ChatPost
	clock      func() time.Time
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, storage contract.IRoomStorage,
	repository contract.IMessageRepository, index contract.IMessageIndex, executor contract.IExecutor,
	metrics *observability.Metrics, cfg Config) *Orchestrator {
	registry := NewRegistry()
	store := NewRoomStore(log, storage, metrics)
	fanout := NewFanout(log, registry, store, cfg.SinkTimeout, metrics)
	return &Orchestrator{
		log:        log,
		cfg:        cfg,
		registry:   registry,
		store:      store,
		fanout:     fanout,
		membership: NewMembership(log, registry, store, fanout, repository, metrics),
		arbiter:    NewArbiter(log, registry, store, fanout, cfg.GraceWindow, metrics),
		storage:    storage,
		repository: repository,
		index:      index,
		executor:   executor,
		supervisor: supervisor,
		metrics:    metrics,
		chat:       make(chan domain.ChatPost, cfg.ChatBufferSize),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the arbitration clock. Tests only.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// Start builds the chat pipeline and blocks running the supervised workers
// until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	moderationWorker, err := o.prepareModeration()
	if err != nil {
		return err
	}
	o.supervisor.Add(moderationWorker)
	if o.cfg.MetricInterval > 0 {
		o.supervisor.Add(workers.NewChannelCapacityWorker(o.log,
			[]workers.NamedChannel{{Name: "chat", Channel: o.chat}}, o.metrics, o.cfg.MetricInterval))
	}

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

func (o *Orchestrator) prepareModeration() (contract.Worker, error) {
	data, err := DefaultCensoredLoader().LoadAll("censored")
	if err != nil {
		return nil, err
	}
	o.log.Info(fmt.Sprintf("%d censored files loaded [%s]", len(data.Languages), strings.Join(data.Languages, ",")))
	o.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	moderator, err := moderation.NewModerator(data.Words, o.cfg.CharReplacement, o.log)
	if err != nil {
		return nil, err
	}
	return workers.NewModerationWorker(moderator, o.chat, o.repository, o.index, o, o.metrics, o.log), nil
}

func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// Publish relays a moderated chat message to the whole room, author included.
func (o *Orchestrator) Publish(ctx context.Context, message domain.Message) {
	o.fanout.Broadcast(ctx, message.Room, event.FromMessage(message), "")
}

func (o *Orchestrator) Join(ctx context.Context, id domain.ConnectionID, cmd domain.JoinCommand, sink contract.EventSink) error {
	if !cmd.Room.Valid() {
		return cerrors.ErrInvalidRoomID
	}
	o.membership.Join(ctx, id, cmd, sink)
	return nil
}

func (o *Orchestrator) Disconnect(ctx context.Context, id domain.ConnectionID) {
	o.membership.Leave(ctx, id)
}

func (o *Orchestrator) Handle(ctx context.Context, id domain.ConnectionID, cmd domain.Command) error {
	conn, ok := o.registry.Resolve(id)
	if !ok {
		return cerrors.ErrConnectionNotFound
	}
	if !conn.InRoom() {
		return cerrors.ErrNotInRoom
	}

	switch c := cmd.(type) {
	case domain.MessageSendCommand:
		o.postChat(conn, c)
	case domain.DrawCommand:
		o.draw(ctx, conn, c)
	case domain.SetLanguageCommand:
		o.registry.SetLanguage(id, c.Language)
	case domain.CodeRequestCommand:
		o.arbiter.CodeRequest(ctx, id, conn.Room, c.Lang)
	case domain.ChangedCodeCommand:
		o.arbiter.Propose(ctx, domain.EditProposal{
			Room:       conn.Room,
			Language:   c.Lang,
			Code:       c.Code,
			Proposer:   id,
			ReceivedAt: o.clock(),
		})
	case domain.FilesListCommand:
		o.FilesChanged(ctx, conn.Room)
	case domain.ExecuteCodeCommand:
		o.executeCode(ctx, conn, c)
	case domain.SearchMessagesCommand:
		return o.searchMessages(ctx, conn, c)
	case domain.ExplicitDisconnectCommand:
		o.Disconnect(ctx, id)
	default:
		return fmt.Errorf("%w: %s", cerrors.ErrUnknownEvent, cmd.EventName())
	}
	return nil
}

// postChat never blocks the connection: when the pipeline is saturated the
// message is dropped and counted.
func (o *Orchestrator) postChat(conn domain.Connection, cmd domain.MessageSendCommand) {
	post := domain.ChatPost{
		Room:       conn.Room,
		Author:     conn.DisplayName,
		Content:    cmd.Message,
		Fields:     cmd.Fields,
		ReceivedAt: o.clock(),
	}
	select {
	case o.chat <- post:
	default:
		o.metrics.DroppedEvents.WithLabelValues(cmd.EventName()).Inc()
		o.log.Warn("Chat channel full, dropping message", "room", conn.Room, "author", conn.DisplayName)
	}
}

// draw appends and relays inside the room section so every member sees the
// same stroke order as the stored whiteboard.
func (o *Orchestrator) draw(ctx context.Context, conn domain.Connection, cmd domain.DrawCommand) {
	o.store.Dispatch(conn.Room, func(room *domain.Room) {
		room.AppendDraw(cmd.Data)
		o.fanout.BroadcastTo(ctx, room.Members(), event.Draw(cmd.Data), conn.ID)
	})
}

// FilesChanged broadcasts the current file list of the room. It is also
// called by the upload endpoint.
func (o *Orchestrator) FilesChanged(ctx context.Context, roomID domain.RoomID) {
	files, err := o.storage.ListFiles(roomID)
	if err != nil {
		o.log.Error("Could not list room files", "room", roomID, "error", err)
		return
	}
	o.fanout.Broadcast(ctx, roomID, event.NewFilesList(files), "")
}

// executeCode detaches the execution from the requesting connection: it
// runs to completion even if the requester leaves, and its output goes to
// whoever is in the room at that point.
func (o *Orchestrator) executeCode(ctx context.Context, conn domain.Connection, cmd domain.ExecuteCodeCommand) {
	code := cmd.Code
	if code == "" {
		code = o.store.GetCodeBuffer(conn.Room, cmd.Lang)
	}
	req := domain.ExecutionRequest{
		Room:        conn.Room,
		Language:    cmd.Lang,
		Code:        code,
		RequestedBy: conn.ID,
	}

	detached := context.WithoutCancel(ctx)
	o.executor.Submit(detached, req, func(res domain.ExecutionResult) {
		o.fanout.Broadcast(detached, req.Room, event.FromResult(res), "")
	})
}

func (o *Orchestrator) searchMessages(ctx context.Context, conn domain.Connection, cmd domain.SearchMessagesCommand) error {
	limit := cmd.Limit
	if limit == 0 {
		limit = o.cfg.SearchLimit
	}
	hits, err := o.index.Search(ctx, conn.Room, cmd.Query, limit)
	if err != nil {
		return err
	}
	o.fanout.Unicast(ctx, conn.ID, event.SearchResults{Query: cmd.Query, Hits: event.FromMessages(hits)})
	return nil
}

func (o *Orchestrator) Rooms() []domain.RoomSummary {
	return o.store.Rooms()
}

// Registry and Store are exposed for the inspection endpoints and tests.
func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) Store() *RoomStore { return o.store }
