//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	"context"
	"io"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker
// for supervision logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the delivery end of one connection.
// Consume must not block longer than ctx allows.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IRoomStorage is the room-scoped file area as seen by the core.
type IRoomStorage interface {
	CreateRoomStorage(roomID domain.RoomID) error
	ListFiles(roomID domain.RoomID) ([]string, error)
	AcceptUpload(roomID domain.RoomID, filename string, content io.Reader) error
	StreamFile(roomID domain.RoomID, filename string) (io.ReadCloser, domain.FileInfo, error)
	NewWorkspace(roomID domain.RoomID) (string, error)
}

// IExecutor runs one execution request asynchronously and hands the result
// to deliver exactly once.
type IExecutor interface {
	Submit(ctx context.Context, req domain.ExecutionRequest, deliver func(domain.ExecutionResult))
	Wait()
}

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(roomID domain.RoomID, cursor *string) ([]domain.Message, *string, error)
}

type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.Message, error)
}

// ISessionService is everything the transports need from the session core.
type ISessionService interface {
	Join(ctx context.Context, id domain.ConnectionID, cmd domain.JoinCommand, sink EventSink) error
	Handle(ctx context.Context, id domain.ConnectionID, cmd domain.Command) error
	Disconnect(ctx context.Context, id domain.ConnectionID)
	FilesChanged(ctx context.Context, roomID domain.RoomID)
	Rooms() []domain.RoomSummary
}
