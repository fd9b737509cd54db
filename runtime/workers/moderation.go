package workers

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"collab-lab/moderation"
	"collab-lab/observability"
	"context"
	"log/slog"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

// MessagePublisher relays a moderated message to its room.
type MessagePublisher interface {
	Publish(ctx context.Context, message domain.Message)
}

// ModerationWorker is the chat pipeline: censor, tag the language, store,
// index, then publish. A single instance keeps messages of a room in the
// order they were posted.
type ModerationWorker struct {
	moderator  moderation.Moderator
	posts      <-chan domain.ChatPost
	repository contract.IMessageRepository
	index      contract.IMessageIndex
	publisher  MessagePublisher
	metrics    *observability.Metrics
	log        *slog.Logger
}

func NewModerationWorker(moderator moderation.Moderator, posts <-chan domain.ChatPost,
	repository contract.IMessageRepository, index contract.IMessageIndex,
	publisher MessagePublisher, metrics *observability.Metrics, log *slog.Logger) *ModerationWorker {
	return &ModerationWorker{
		moderator:  moderator,
		posts:      posts,
		repository: repository,
		index:      index,
		publisher:  publisher,
		metrics:    metrics,
		log:        log,
	}
}

func (w *ModerationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping moderation worker")
			return ctx.Err()
		case post, ok := <-w.posts:
			if !ok {
				w.log.Debug("Chat channel is closed")
				return nil
			}
			w.publisher.Publish(ctx, w.process(post))
		}
	}
}

// process never drops a message: storage and indexing failures are logged
// and the message is still relayed.
func (w *ModerationWorker) process(post domain.ChatPost) domain.Message {
	content, censored := w.moderator.Censor(post.Content)
	message := domain.Message{
		ID:            uuid.New(),
		Room:          post.Room,
		Author:        post.Author,
		Content:       content,
		Lang:          detectLanguage(post.Content),
		CensoredWords: censored,
		SentAt:        post.ReceivedAt,
		Fields:        post.Fields,
	}

	w.metrics.ChatMessages.Inc()
	if len(censored) > 0 {
		w.metrics.CensoredMessages.Inc()
		w.log.Debug("Chat message censored", "room", post.Room, "author", post.Author, "words", len(censored))
	}

	if err := w.repository.StoreMessage(message); err != nil {
		w.log.Error("Could not store chat message", "room", post.Room, "error", err)
	}
	if err := w.index.Index(message); err != nil {
		w.log.Error("Could not index chat message", "room", post.Room, "error", err)
	}
	return message
}

// detectLanguage returns an ISO 639-1 code, or "" when detection is not
// reliable (short messages mostly).
func detectLanguage(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
