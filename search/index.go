// Package search indexes chat messages for full-text lookup inside a room.
package search

import (
	"collab-lab/domain"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	blugesearch "github.com/blugelabs/bluge/search"
	"github.com/google/uuid"
)

const (
	idField       = "_id"
	roomField     = "room"
	authorField   = "author"
	contentField  = "content"
	langField     = "lang"
	sentAtField   = "sentAt"
	censoredField = "censored"
	fieldsField   = "fields"

	DefaultLimit = 20
)

// MessageIndex is an in-memory bluge index. It is rebuilt from nothing on
// every start, like the rest of the session state.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (i *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(roomField, string(message.Room)).StoreValue()).
		AddField(bluge.NewKeywordField(authorField, message.Author).StoreValue()).
		AddField(bluge.NewTextField(contentField, message.Content).StoreValue()).
		AddField(bluge.NewKeywordField(langField, message.Lang).StoreValue()).
		AddField(bluge.NewKeywordField(sentAtField, message.SentAt.UTC().Format(time.RFC3339Nano)).StoreValue())
	for _, word := range message.CensoredWords {
		doc.AddField(bluge.NewKeywordField(censoredField, word).StoreValue())
	}
	if len(message.Fields) > 0 {
		encoded, err := json.Marshal(message.Fields)
		if err != nil {
			return err
		}
		doc.AddField(bluge.NewStoredOnlyField(fieldsField, encoded))
	}
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the best matches for query among the room's messages.
// A limit of zero means DefaultLimit.
func (i *MessageIndex) Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Debug("Could not close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField(contentField)).
		AddMust(bluge.NewTermQuery(string(roomID)).SetField(roomField))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	match, err := matches.Next()
	for err == nil && match != nil {
		message, visitErr := toMessage(match)
		if visitErr != nil {
			return nil, visitErr
		}
		messages = append(messages, message)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

func toMessage(match *blugesearch.DocumentMatch) (domain.Message, error) {
	var (
		message  domain.Message
		parseErr error
	)
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		switch field {
		case idField:
			message.ID, parseErr = uuid.ParseBytes(value)
		case roomField:
			message.Room = domain.RoomID(value)
		case authorField:
			message.Author = string(value)
		case contentField:
			message.Content = string(value)
		case langField:
			message.Lang = string(value)
		case sentAtField:
			message.SentAt, parseErr = time.Parse(time.RFC3339Nano, string(value))
		case censoredField:
			message.CensoredWords = append(message.CensoredWords, string(value))
		case fieldsField:
			parseErr = json.Unmarshal(value, &message.Fields)
		}
		return parseErr == nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, parseErr
}
