package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

var (
	ErrChatNotFound    = errors.New("chat with provided chat_id does not exist")
	ErrSelfChat        = errors.New("direct chat requires two distinct users")
	ErrMessageNotFound = errors.New("message does not exist")
)

const (
	DirectChatsPrimaryKey      = "direct_chats_pkey"
	DirectChatsPairKey         = "direct_chats_pair_key"
	DirectChatsDistinctUsers   = "direct_chats_distinct_users"
	DirectChatsPairOrder       = "direct_chats_pair_order"
	DirectMessagesChatIdFKey   = "direct_messages_chat_id_fkey"
	DirectMessagesPrimaryKey   = "direct_messages_pkey"
	DirectMessagesPayloadCheck = "direct_messages_payload"
)

var directChatColumns = []string{"chat_id", "user_a", "user_b", "created_at", "updated_at"}

type ChatsStorage struct {
	db Scope
}

func NewChatsStorage(db Scope) *ChatsStorage {
	return &ChatsStorage{
		db: db,
	}
}

// CreateChat inserts the chat unless a chat for the same unordered pair
// already exists. It reports whether a row was inserted.
func (s *ChatsStorage) CreateChat(ctx context.Context, chat *models.DirectChat) (bool, error) {
	low, high := models.OrderedPair(chat.UserA, chat.UserB)
	query, args, err := sq.Insert("direct_chats").
		Columns("chat_id", "user_a", "user_b", "user_low", "user_high", "created_at", "updated_at").
		Values(chat.ChatID, chat.UserA, chat.UserB, low, high, chat.CreatedAt, chat.UpdatedAt).
		Suffix("ON CONFLICT ON CONSTRAINT " + DirectChatsPairKey + " DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case DirectChatsDistinctUsers, DirectChatsPairOrder:
		return false, ErrSelfChat
	case DirectChatsPrimaryKey:
		return false, nil
	}
	if err != nil {
		return false, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *ChatsStorage) getChat(ctx context.Context, where sq.Sqlizer, suffix string) (*models.DirectChat, error) {
	builder := sq.Select(directChatColumns...).
		From("direct_chats").
		Where(where).
		PlaceholderFormat(sq.Dollar)

	if suffix != "" {
		builder = builder.Suffix(suffix)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	chat := models.DirectChat{}
	err = s.db.GetContext(ctx, &chat, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	} else if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *ChatsStorage) GetChat(ctx context.Context, chatId string) (*models.DirectChat, error) {
	return s.getChat(ctx, sq.Eq{"chat_id": chatId}, "")
}

func (s *ChatsStorage) GetChatByPair(ctx context.Context, x, y string) (*models.DirectChat, error) {
	low, high := models.OrderedPair(x, y)
	return s.getChat(ctx, sq.Eq{"user_low": low, "user_high": high}, "")
}

// LockChat reads the chat and holds a row lock on it until the surrounding
// transaction ends. Outside of a transaction it behaves as GetChat.
func (s *ChatsStorage) LockChat(ctx context.Context, chatId string) (*models.DirectChat, error) {
	return s.getChat(ctx, sq.Eq{"chat_id": chatId}, "FOR UPDATE")
}

// TouchChat moves updated_at forward to at. It never moves it backwards.
func (s *ChatsStorage) TouchChat(ctx context.Context, chatId string, at time.Time) error {
	query, args, err := sq.Update("direct_chats").
		Set("updated_at", sq.Expr("GREATEST(updated_at, ?)", at)).
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

type chatPreviewRow struct {
	models.DirectChat
	PeerID          string         `db:"peer_id"`
	PeerUsername    string         `db:"peer_username"`
	PeerDisplayName string         `db:"peer_display_name"`
	PeerAvatarURL   string         `db:"peer_avatar_url"`
	LastMessageID   sql.NullString `db:"last_message_id"`
	LastSeq         sql.NullInt64  `db:"last_seq"`
	LastSenderID    sql.NullString `db:"last_sender_id"`
	LastContent     sql.NullString `db:"last_content"`
	LastImageRef    sql.NullString `db:"last_image_ref"`
	LastRead        sql.NullBool   `db:"last_read"`
	LastCreatedAt   sql.NullTime   `db:"last_created_at"`
	UnreadCount     int            `db:"unread_count"`
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (r *chatPreviewRow) toModel() models.ChatPreview {
	preview := models.ChatPreview{
		ChatDetails: models.ChatDetails{
			DirectChat: r.DirectChat,
			OtherUser: models.Profile{
				UserID:      r.PeerID,
				Username:    r.PeerUsername,
				DisplayName: r.PeerDisplayName,
				AvatarURL:   r.PeerAvatarURL,
			},
		},
		UnreadCount: r.UnreadCount,
	}
	if r.LastMessageID.Valid {
		preview.LastMessage = &models.DirectMessage{
			MessageID: r.LastMessageID.String,
			Seq:       r.LastSeq.Int64,
			ChatID:    r.ChatID,
			SenderID:  r.LastSenderID.String,
			Content:   nullableString(r.LastContent),
			ImageRef:  nullableString(r.LastImageRef),
			Read:      r.LastRead.Bool,
			CreatedAt: r.LastCreatedAt.Time,
		}
	}
	return preview
}

// GetUserChats returns every chat the user participates in, most recently
// active first, with the peer profile, the last message and the number of
// messages the user has not read yet.
func (s *ChatsStorage) GetUserChats(ctx context.Context, userId string) ([]models.ChatPreview, error) {
	const peer = "CASE WHEN c.user_a = ? THEN c.user_b ELSE c.user_a END"

	query, args, err := sq.Select(
		"c.chat_id", "c.user_a", "c.user_b", "c.created_at", "c.updated_at",
		"COALESCE(p.username, '') AS peer_username",
		"COALESCE(p.display_name, '') AS peer_display_name",
		"COALESCE(p.avatar_url, '') AS peer_avatar_url",
		"lm.message_id AS last_message_id",
		"lm.seq AS last_seq",
		"lm.sender_id AS last_sender_id",
		"lm.content AS last_content",
		"lm.image_ref AS last_image_ref",
		"lm.read AS last_read",
		"lm.created_at AS last_created_at",
	).
		Column(sq.Expr(peer+" AS peer_id", userId)).
		Column(sq.Expr(
			"(SELECT count(*) FROM direct_messages u WHERE u.chat_id = c.chat_id AND u.sender_id <> ? AND NOT u.read) AS unread_count",
			userId,
		)).
		From("direct_chats c").
		LeftJoin("user_profiles p ON p.user_id = "+peer, userId).
		JoinClause(`LEFT JOIN LATERAL (
			SELECT m.message_id, m.seq, m.sender_id, m.content, m.image_ref, m.read, m.created_at
			FROM direct_messages m
			WHERE m.chat_id = c.chat_id
			ORDER BY m.created_at DESC, m.seq DESC
			LIMIT 1
		) lm ON TRUE`).
		Where(sq.Or{sq.Eq{"c.user_a": userId}, sq.Eq{"c.user_b": userId}}).
		OrderBy("c.updated_at DESC", "c.chat_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	rows := make([]chatPreviewRow, 0)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	previews := make([]models.ChatPreview, len(rows))
	for i := range rows {
		previews[i] = rows[i].toModel()
	}
	return previews, nil
}
