package repositories

import (
	"collab-lab/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// cursorSeed sorts after every 19-digit timestamp.
const cursorSeed = "9999999999999999999"

// MessageRepository keeps chat history in Badger. Values are protobuf
// Structs so the layout can evolve without a schema file.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// OpenInMemory opens a Badger instance that lives as long as the process.
func OpenInMemory() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

// StoreMessage writes under "msg:{room}:{unix_nano padded to 19}:{uuid}":
// lexicographic order is chronological order, and the uuid keeps two
// messages of the same nanosecond apart.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	value, err := toStruct(message)
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(value)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), bytes)
	})
}

// GetMessages returns the newest messages of a room first. Pass the returned
// cursor back to page towards older messages; a nil cursor starts from the
// newest one.
func (m MessageRepository) GetMessages(roomID domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	var (
		values  [][]byte
		lastKey string
	)
	prefix := []byte(fmt.Sprintf("msg:%s:", roomID))

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seek := cursorSeed
		if cursor != nil {
			seek = *cursor
		}
		it.Seek(append(append([]byte{}, prefix...), seek...))
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(values) == *m.limitMessages {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(values))
	for _, b := range values {
		var value structpb.Struct
		if err := proto.Unmarshal(b, &value); err != nil {
			return nil, nil, err
		}
		message, err := fromStruct(&value)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	if len(messages) == 0 {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", message.Room, message.SentAt.UnixNano(), message.ID))
}

// toStruct keeps client fields as one JSON string so they come back byte
// for byte.
func toStruct(message domain.Message) (*structpb.Struct, error) {
	values := map[string]any{
		"id":       message.ID.String(),
		"room":     string(message.Room),
		"author":   message.Author,
		"content":  message.Content,
		"lang":     message.Lang,
		"sentAt":   message.SentAt.UTC().Format(time.RFC3339Nano),
		"censored": lo.ToAnySlice(message.CensoredWords),
	}
	if len(message.Fields) > 0 {
		encoded, err := json.Marshal(message.Fields)
		if err != nil {
			return nil, err
		}
		values["fields"] = string(encoded)
	}
	return structpb.NewStruct(values)
}

func fromStruct(value *structpb.Struct) (domain.Message, error) {
	fields := value.GetFields()
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return domain.Message{}, err
	}
	sentAt, err := time.Parse(time.RFC3339Nano, fields["sentAt"].GetStringValue())
	if err != nil {
		return domain.Message{}, err
	}

	var censored []string
	for _, v := range fields["censored"].GetListValue().GetValues() {
		censored = append(censored, v.GetStringValue())
	}

	var extra map[string]json.RawMessage
	if encoded := fields["fields"].GetStringValue(); encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &extra); err != nil {
			return domain.Message{}, err
		}
	}

	return domain.Message{
		ID:            id,
		Room:          domain.RoomID(fields["room"].GetStringValue()),
		Author:        fields["author"].GetStringValue(),
		Content:       fields["content"].GetStringValue(),
		Lang:          fields["lang"].GetStringValue(),
		CensoredWords: censored,
		SentAt:        sentAt,
		Fields:        extra,
	}, nil
}
