package websocket

import (
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/errors"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return domain.RoomID(fl.Field().String()).Valid()
	})
	return v
}

// ValidateJoin checks the handshake query before the connection is upgraded.
func ValidateJoin(cmd domain.JoinCommand) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	return nil
}

// Decode turns one inbound frame into a validated command. The event name
// is returned whenever the envelope itself could be read, so the caller
// can name it in the invalidRequest reply.
func Decode(frame []byte) (string, domain.Command, error) {
	var envelope event.Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}

	var cmd domain.Command
	var err error
	switch envelope.Event {
	case "messageSend":
		cmd, err = decodeMessageSend(envelope.Data)
	case "draw":
		cmd, err = decodeDraw(envelope.Data)
	case "setLanguage":
		cmd, err = decodeInto[domain.SetLanguageCommand](envelope.Data)
	case "codeRequest":
		cmd, err = decodeInto[domain.CodeRequestCommand](envelope.Data)
	case "changedCode":
		cmd, err = decodeInto[domain.ChangedCodeCommand](envelope.Data)
	case "filesList":
		cmd = domain.FilesListCommand{}
	case "executeCode":
		cmd, err = decodeInto[domain.ExecuteCodeCommand](envelope.Data)
	case "searchMessages":
		cmd, err = decodeInto[domain.SearchMessagesCommand](envelope.Data)
	case "explicitDisconnect":
		cmd = domain.ExplicitDisconnectCommand{}
	default:
		return envelope.Event, nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, envelope.Event)
	}
	if err != nil {
		return envelope.Event, nil, err
	}
	return envelope.Event, cmd, nil
}

func decodeInto[T domain.Command](data json.RawMessage) (domain.Command, error) {
	var cmd T
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing data", errors.ErrInvalidFrame)
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	return cmd, nil
}

// decodeMessageSend keeps every field of the payload. Only "message" is
// typed, the rest is relayed to the room untouched.
func decodeMessageSend(data json.RawMessage) (domain.Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: messageSend data must be an object", errors.ErrInvalidFrame)
	}
	var cmd domain.MessageSendCommand
	if raw, ok := fields["message"]; ok {
		if err := json.Unmarshal(raw, &cmd.Message); err != nil {
			return nil, fmt.Errorf("%w: message must be a string", errors.ErrInvalidFrame)
		}
	}
	for _, key := range event.MessageKeys {
		delete(fields, key)
	}
	if len(fields) > 0 {
		cmd.Fields = fields
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	return cmd, nil
}

// decodeDraw only checks the payload is a JSON object; its content belongs
// to the clients.
func decodeDraw(data json.RawMessage) (domain.Command, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil || probe == nil {
		return nil, fmt.Errorf("%w: draw data must be an object", errors.ErrInvalidFrame)
	}
	return domain.DrawCommand{Data: append(json.RawMessage(nil), data...)}, nil
}
