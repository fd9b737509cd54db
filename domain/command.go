package domain

import "encoding/json"

// Command is an inbound client event, already decoded and validated.
type Command interface {
	EventName() string
}

// JoinCommand is carried by the websocket handshake query, not by a frame.
type JoinCommand struct {
	Room        RoomID `validate:"required,roomid"`
	DisplayName string `validate:"required,max=64"`
}

func (JoinCommand) EventName() string { return "join" }

// MessageSendCommand carries the chat text, which is moderated, and every
// other field the client sent, which is relayed as is.
type MessageSendCommand struct {
	Message string                     `json:"message" validate:"max=4096"`
	Fields  map[string]json.RawMessage `json:"-"`
}

func (MessageSendCommand) EventName() string { return "messageSend" }

// DrawCommand keeps the whiteboard payload opaque; the server only stores
// and relays it.
type DrawCommand struct {
	Data json.RawMessage `validate:"required"`
}

func (DrawCommand) EventName() string { return "draw" }

type SetLanguageCommand struct {
	Language Language `json:"language" validate:"required,max=32"`
}

func (SetLanguageCommand) EventName() string { return "setLanguage" }

type CodeRequestCommand struct {
	Lang Language `json:"lang" validate:"required,max=32"`
}

func (CodeRequestCommand) EventName() string { return "codeRequest" }

type ChangedCodeCommand struct {
	Lang Language `json:"lang" validate:"required,max=32"`
	Code string   `json:"code" validate:"max=1048576"`
}

func (ChangedCodeCommand) EventName() string { return "changedCode" }

type FilesListCommand struct{}

func (FilesListCommand) EventName() string { return "filesList" }

// ExecuteCodeCommand runs Code when present, the room's current buffer
// for Lang otherwise.
type ExecuteCodeCommand struct {
	Lang Language `json:"lang" validate:"required,oneof=python javascript c cpp java"`
	Code string   `json:"code" validate:"max=1048576"`
}

func (ExecuteCodeCommand) EventName() string { return "executeCode" }

type SearchMessagesCommand struct {
	Query string `json:"query" validate:"required,max=256"`
	Limit int    `json:"limit" validate:"gte=0,lte=100"`
}

func (SearchMessagesCommand) EventName() string { return "searchMessages" }

type ExplicitDisconnectCommand struct{}

func (ExplicitDisconnectCommand) EventName() string { return "explicitDisconnect" }
