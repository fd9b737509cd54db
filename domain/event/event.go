// Package event defines every server-to-client event and its wire encoding.
package event

import (
	"collab-lab/domain"
	"encoding/json"
	"time"

	"github.com/samber/lo"
)

// Event is anything the fanout can deliver to a connection.
type Event interface {
	Name() string
}

// Envelope is the frame format shared by both directions:
// {"event": "<name>", "data": <payload>}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: evt.Name(), Data: data})
}

type RoomState domain.Snapshot

func (RoomState) Name() string { return "roomState" }

// NewMember is the full roster, connection id to display name.
type NewMember map[domain.ConnectionID]string

func (NewMember) Name() string { return "newMember" }

type MemberLeave struct {
	ID       domain.ConnectionID `json:"id"`
	UserName string              `json:"userName"`
}

func (MemberLeave) Name() string { return "memberLeave" }

// NewMessage is encoded as one flat object: the client fields of the
// original messageSend with the server fields on top.
type NewMessage struct {
	ID       string                     `json:"id"`
	Message  string                     `json:"message"`
	User     string                     `json:"user"`
	Lang     string                     `json:"lang,omitempty"`
	Censored bool                       `json:"censored"`
	SentAt   time.Time                  `json:"sentAt"`
	Fields   map[string]json.RawMessage `json:"-"`
}

// MessageKeys are the newMessage fields set by the server. A client field
// with one of these names never reaches the room.
var MessageKeys = []string{"id", "message", "user", "lang", "censored", "sentAt"}

func (NewMessage) Name() string { return "newMessage" }

func (m NewMessage) MarshalJSON() ([]byte, error) {
	type plain NewMessage
	own, err := json.Marshal(plain(m))
	if err != nil || len(m.Fields) == 0 {
		return own, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(own, &merged); err != nil {
		return nil, err
	}
	for key, value := range m.Fields {
		if _, taken := merged[key]; !taken && !lo.Contains(MessageKeys, key) {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

func (m *NewMessage) UnmarshalJSON(data []byte) error {
	type plain NewMessage
	var own plain
	if err := json.Unmarshal(data, &own); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range MessageKeys {
		delete(fields, key)
	}
	if len(fields) > 0 {
		own.Fields = fields
	}
	*m = NewMessage(own)
	return nil
}

func FromMessage(m domain.Message) NewMessage {
	return NewMessage{
		ID:       m.ID.String(),
		Message:  m.Content,
		User:     m.Author,
		Lang:     m.Lang,
		Censored: len(m.CensoredWords) > 0,
		SentAt:   m.SentAt,
		Fields:   m.Fields,
	}
}

type MessageHistory []NewMessage

func (MessageHistory) Name() string { return "messageHistory" }

func FromMessages(messages []domain.Message) MessageHistory {
	return lo.Map(messages, func(m domain.Message, _ int) NewMessage {
		return FromMessage(m)
	})
}

// Draw relays the original whiteboard payload untouched.
type Draw json.RawMessage

func (Draw) Name() string { return "draw" }

func (d Draw) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

type CodeResponse struct {
	Code string `json:"code"`
}

func (CodeResponse) Name() string { return "codeResponse" }

// ChangedCode is both the accepted edit relayed to the room and the
// authoritative buffer pushed back to a rejected proposer.
type ChangedCode struct {
	UserName string          `json:"userName"`
	Lang     domain.Language `json:"lang"`
	Code     string          `json:"code"`
}

func (ChangedCode) Name() string { return "changedCode" }

type NewFilesList []string

func (NewFilesList) Name() string { return "newFilesList" }

func (l NewFilesList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// CodeOutput has a null error when the program compiled and ran cleanly.
type CodeOutput struct {
	Error  *string `json:"error"`
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
}

func (CodeOutput) Name() string { return "codeOutput" }

func FromResult(res domain.ExecutionResult) CodeOutput {
	out := CodeOutput{Stdout: res.Stdout, Stderr: res.Stderr}
	if res.Err != nil {
		out.Error = lo.ToPtr(res.Err.Error())
	}
	return out
}

type SearchResults struct {
	Query string       `json:"query"`
	Hits  []NewMessage `json:"hits"`
}

func (SearchResults) Name() string { return "searchResults" }

type InvalidRequest struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

func (InvalidRequest) Name() string { return "invalidRequest" }
