package storage

import (
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	UpdateChatCreated      = "chat_created"
	UpdateMessageSent      = "message_sent"
	UpdateMessagesRead     = "messages_read"
	UpdateGroupMessageSent = "group_message_sent"
)

// UpdatesStore publishes committed changes for other backend services.
// Clients never receive these; they keep polling.
type UpdatesStore interface {
	ChatCreated(chat *models.ChatCreated) error
	MessageSent(msg *models.MessageSent) error
	MessagesRead(read *models.MessagesRead) error
	GroupMessageSent(msg *models.GroupMessageSent) error
}

type UpdatesStorage struct {
	cfg      *UpdatesStoreConfig
	producer sarama.SyncProducer
}

type UpdatesStoreConfig struct {
	UpdatesTopic string
}

func NewUpdatesStore(p sarama.SyncProducer, cfg *UpdatesStoreConfig) *UpdatesStorage {
	return &UpdatesStorage{
		producer: p,
		cfg:      cfg,
	}
}

func (s *UpdatesStorage) putUpdate(topic, key string, event *structpb.Struct) error {
	bytes, err := proto.Marshal(event)
	if err != nil {
		return err
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	})

	return err
}

func stringList(items []string) []interface{} {
	list := make([]interface{}, len(items))
	for i, item := range items {
		list[i] = item
	}
	return list
}

func optionalString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func newUpdate(kind string, meta models.UpdateMeta, body map[string]interface{}) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type": kind,
		"meta": map[string]interface{}{
			"timestamp": meta.Timestamp.UTC().Unix(),
			"audience":  stringList(meta.Audience),
		},
		"update": body,
	})
}

func (s *UpdatesStorage) chatCreatedToProtobuf(chat *models.ChatCreated) (*structpb.Struct, error) {
	return newUpdate(UpdateChatCreated, chat.UpdateMeta, map[string]interface{}{
		"chat_id": chat.ChatID,
		"user_a":  chat.UserA,
		"user_b":  chat.UserB,
	})
}

func (s *UpdatesStorage) messageSentToProtobuf(msg *models.MessageSent) (*structpb.Struct, error) {
	return newUpdate(UpdateMessageSent, msg.UpdateMeta, map[string]interface{}{
		"message_id": msg.MessageID,
		"from_user":  msg.FromUser,
		"chat_id":    msg.ChatID,
		"content":    optionalString(msg.Content),
		"image":      optionalString(msg.ImageRef),
	})
}

func (s *UpdatesStorage) messagesReadToProtobuf(read *models.MessagesRead) (*structpb.Struct, error) {
	return newUpdate(UpdateMessagesRead, read.UpdateMeta, map[string]interface{}{
		"chat_id":     read.ChatID,
		"reader":      read.Reader,
		"message_ids": stringList(read.MessageIDs),
	})
}

func (s *UpdatesStorage) groupMessageSentToProtobuf(msg *models.GroupMessageSent) (*structpb.Struct, error) {
	return newUpdate(UpdateGroupMessageSent, msg.UpdateMeta, map[string]interface{}{
		"message_id": msg.MessageID,
		"from_user":  msg.FromUser,
		"group_id":   msg.GroupID,
		"content":    optionalString(msg.Content),
		"image":      optionalString(msg.ImageRef),
	})
}

func (s *UpdatesStorage) ChatCreated(chat *models.ChatCreated) error {
	update, err := s.chatCreatedToProtobuf(chat)
	if err != nil {
		return err
	}
	return s.putUpdate(s.cfg.UpdatesTopic, chat.ChatID, update)
}

func (s *UpdatesStorage) MessageSent(msg *models.MessageSent) error {
	update, err := s.messageSentToProtobuf(msg)
	if err != nil {
		return err
	}
	return s.putUpdate(s.cfg.UpdatesTopic, msg.ChatID, update)
}

func (s *UpdatesStorage) MessagesRead(read *models.MessagesRead) error {
	update, err := s.messagesReadToProtobuf(read)
	if err != nil {
		return err
	}
	return s.putUpdate(s.cfg.UpdatesTopic, read.ChatID, update)
}

func (s *UpdatesStorage) GroupMessageSent(msg *models.GroupMessageSent) error {
	update, err := s.groupMessageSentToProtobuf(msg)
	if err != nil {
		return err
	}
	return s.putUpdate(s.cfg.UpdatesTopic, msg.GroupID, update)
}

// NopUpdates drops every update. Used when no broker is configured.
type NopUpdates struct{}

func (NopUpdates) ChatCreated(*models.ChatCreated) error           { return nil }
func (NopUpdates) MessageSent(*models.MessageSent) error           { return nil }
func (NopUpdates) MessagesRead(*models.MessagesRead) error         { return nil }
func (NopUpdates) GroupMessageSent(*models.GroupMessageSent) error { return nil }

// UpdatesBuffer collects updates produced inside a transaction and hands
// them to the target store once Flush is called after commit.
type UpdatesBuffer struct {
	mu      sync.Mutex
	target  UpdatesStore
	pending []func(UpdatesStore) error
}

func NewUpdatesBuffer(target UpdatesStore) *UpdatesBuffer {
	return &UpdatesBuffer{target: target}
}

func (b *UpdatesBuffer) push(fn func(UpdatesStore) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, fn)
	return nil
}

func (b *UpdatesBuffer) ChatCreated(chat *models.ChatCreated) error {
	return b.push(func(s UpdatesStore) error { return s.ChatCreated(chat) })
}

func (b *UpdatesBuffer) MessageSent(msg *models.MessageSent) error {
	return b.push(func(s UpdatesStore) error { return s.MessageSent(msg) })
}

func (b *UpdatesBuffer) MessagesRead(read *models.MessagesRead) error {
	return b.push(func(s UpdatesStore) error { return s.MessagesRead(read) })
}

func (b *UpdatesBuffer) GroupMessageSent(msg *models.GroupMessageSent) error {
	return b.push(func(s UpdatesStore) error { return s.GroupMessageSent(msg) })
}

// Flush delivers buffered updates in order. The data is already committed at
// this point, so delivery failures are logged and never returned.
func (b *UpdatesBuffer) Flush(logger *logrus.Logger) {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, fn := range pending {
		start := time.Now()
		if err := fn(b.target); err != nil && logger != nil {
			logger.
				WithError(err).
				WithField("elapsed", time.Since(start)).
				Error("can't publish update")
		}
	}
}
