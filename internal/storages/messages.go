package storage

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

var (
	ErrMessageAlreadyExists = errors.New("message with provided message_id already exists")
	ErrEmptyMessage         = errors.New("message must have content or an image")
)

const (
	GroupMessagesPrimaryKey   = "group_messages_pkey"
	GroupMessagesGroupIdFKey  = "group_messages_group_id_fkey"
	GroupMessagesPayloadCheck = "group_messages_payload"
)

type MessagesStorage struct {
	db Scope
}

func NewMessagesStorage(db Scope) *MessagesStorage {
	return &MessagesStorage{
		db: db,
	}
}

// PutDirectMessage appends a message and fills in the insertion sequence.
func (s *MessagesStorage) PutDirectMessage(ctx context.Context, message *models.DirectMessage) error {
	query, args, err := sq.Insert("direct_messages").
		Columns("message_id", "chat_id", "sender_id", "content", "image_ref", "read", "created_at").
		Values(message.MessageID, message.ChatID, message.SenderID, message.Content, message.ImageRef, message.Read, message.CreatedAt).
		Suffix("RETURNING seq").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	err = s.db.QueryRowxContext(ctx, query, args...).Scan(&message.Seq)

	switch GetPgxConstraintName(err) {
	case DirectMessagesChatIdFKey:
		return ErrChatNotFound
	case DirectMessagesPrimaryKey:
		return ErrMessageAlreadyExists
	case DirectMessagesPayloadCheck:
		return ErrEmptyMessage
	}
	return err
}

// MarkRead flips every unread message in the chat that was not sent by
// readerId and returns the ids of flipped messages. Messages that are
// already read are left untouched, so concurrent calls never flip a message twice.
func (s *MessagesStorage) MarkRead(ctx context.Context, chatId string, readerId string) ([]string, error) {
	query, args, err := sq.Update("direct_messages").
		Set("read", true).
		Where(sq.Eq{"chat_id": chatId, "read": false}).
		Where(sq.NotEq{"sender_id": readerId}).
		Suffix("RETURNING message_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	if err = s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// senderColumns selects the mirrored profile of the message author. Authors
// without a mirrored profile get empty fields.
var senderColumns = []string{
	"COALESCE(p.username, '') AS sender_username",
	"COALESCE(p.display_name, '') AS sender_display_name",
	"COALESCE(p.avatar_url, '') AS sender_avatar_url",
}

type senderRow struct {
	SenderUsername    string `db:"sender_username"`
	SenderDisplayName string `db:"sender_display_name"`
	SenderAvatarURL   string `db:"sender_avatar_url"`
}

func (r senderRow) profile(userId string) *models.Profile {
	return &models.Profile{
		UserID:      userId,
		Username:    r.SenderUsername,
		DisplayName: r.SenderDisplayName,
		AvatarURL:   r.SenderAvatarURL,
	}
}

type directMessageRow struct {
	models.DirectMessage
	senderRow
}

func (s *MessagesStorage) SelectDirectMessages(ctx context.Context, chatId string) ([]models.DirectMessage, error) {
	query, args, err := sq.Select("m.message_id", "m.seq", "m.chat_id", "m.sender_id", "m.content", "m.image_ref", "m.read", "m.created_at").
		Columns(senderColumns...).
		From("direct_messages m").
		LeftJoin("user_profiles p ON p.user_id = m.sender_id").
		Where(sq.Eq{"m.chat_id": chatId}).
		OrderBy("m.created_at ASC", "m.seq ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	rows := make([]directMessageRow, 0)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	messages := make([]models.DirectMessage, len(rows))
	for i, row := range rows {
		messages[i] = row.DirectMessage
		messages[i].Sender = row.profile(row.SenderID)
	}
	return messages, nil
}

func (s *MessagesStorage) PutGroupMessage(ctx context.Context, message *models.GroupMessage) error {
	query, args, err := sq.Insert("group_messages").
		Columns("message_id", "group_id", "sender_id", "content", "image_ref", "created_at").
		Values(message.MessageID, message.GroupID, message.SenderID, message.Content, message.ImageRef, message.CreatedAt).
		Suffix("RETURNING seq").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	err = s.db.QueryRowxContext(ctx, query, args...).Scan(&message.Seq)

	switch GetPgxConstraintName(err) {
	case GroupMessagesGroupIdFKey:
		return ErrGroupNotFound
	case GroupMessagesPrimaryKey:
		return ErrMessageAlreadyExists
	case GroupMessagesPayloadCheck:
		return ErrEmptyMessage
	}
	return err
}

type groupMessageRow struct {
	models.GroupMessage
	senderRow
}

func (s *MessagesStorage) SelectGroupMessages(ctx context.Context, groupId string) ([]models.GroupMessage, error) {
	query, args, err := sq.Select("m.message_id", "m.seq", "m.group_id", "m.sender_id", "m.content", "m.image_ref", "m.created_at").
		Columns(senderColumns...).
		From("group_messages m").
		LeftJoin("user_profiles p ON p.user_id = m.sender_id").
		Where(sq.Eq{"m.group_id": groupId}).
		OrderBy("m.created_at ASC", "m.seq ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	rows := make([]groupMessageRow, 0)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	messages := make([]models.GroupMessage, len(rows))
	for i, row := range rows {
		messages[i] = row.GroupMessage
		messages[i].Sender = row.profile(row.SenderID)
	}
	return messages, nil
}
