package usecases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/metrics"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

// MembershipGate answers whether a user may post to and read a group.
type MembershipGate interface {
	UserIsMember(ctx context.Context, groupId string, userId string) (bool, error)
}

type MessagesUsecase struct {
	registry storage.Registry
	now      func() time.Time
}

func NewMessagesUsecase(r storage.Registry) *MessagesUsecase {
	return &MessagesUsecase{
		registry: r,
		now:      utcNow,
	}
}

// checkMembership consults the gate and turns its answer into an error.
func checkMembership(ctx context.Context, gate MembershipGate, groupId string, userId string) error {
	ok, err := gate.UserIsMember(ctx, groupId, userId)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserIsNotAGroupMember
	}
	return nil
}

// SendDirect appends a message to the chat and bumps the chat's activity time
// in the same transaction.
func (u *MessagesUsecase) SendDirect(ctx context.Context, claims *auth.UserClaims, chatId string, msg models.MessageSend) (*models.DirectMessage, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}

	content, image, err := normalizeMessage(msg)
	if err != nil {
		return nil, err
	}
	if !ValidateUUID(chatId) {
		return nil, ErrChatNotFound
	}

	var message *models.DirectMessage
	err = u.registry.Atomic(ctx, func(r storage.Registry) error {
		if err := syncProfile(ctx, r, claims); err != nil {
			return err
		}

		chats := r.GetChatsStore()
		chat, err := chats.LockChat(ctx, chatId)
		if err != nil {
			return err
		}
		if !chat.HasParticipant(claims.UserID()) {
			return ErrUserIsNotAChatMember
		}

		now := u.now()
		message = &models.DirectMessage{
			MessageID: uuid.NewString(),
			ChatID:    chatId,
			SenderID:  claims.UserID(),
			Content:   content,
			ImageRef:  image,
			Read:      false,
			CreatedAt: now,
		}

		if err = r.GetMessagesStore().PutDirectMessage(ctx, message); err != nil {
			return err
		}
		if message.Sender, err = profileOf(ctx, r, message.SenderID); err != nil {
			return err
		}
		if err = chats.TouchChat(ctx, chatId, now); err != nil {
			return err
		}

		return r.GetUpdatesStore().MessageSent(&models.MessageSent{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  []string{chat.UserA, chat.UserB},
			},
			MessageID: message.MessageID,
			FromUser:  message.SenderID,
			ChatID:    chatId,
			Content:   content,
			ImageRef:  image,
		})
	})

	if err != nil {
		return nil, wrapError(err)
	}
	metrics.MessagesSent.WithLabelValues("direct").Inc()
	return message, nil
}

// ListDirect returns the chat history oldest first. Messages the caller
// received and had not read yet are marked read in the same transaction and
// are returned already flipped.
func (u *MessagesUsecase) ListDirect(ctx context.Context, claims *auth.UserClaims, chatId string) ([]models.DirectMessage, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}
	if !ValidateUUID(chatId) {
		return nil, ErrChatNotFound
	}

	var messages []models.DirectMessage
	flipped := 0
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		chat, err := r.GetChatsStore().GetChat(ctx, chatId)
		if err != nil {
			return err
		}
		if !chat.HasParticipant(claims.UserID()) {
			return ErrUserIsNotAChatMember
		}

		store := r.GetMessagesStore()
		ids, err := store.MarkRead(ctx, chatId, claims.UserID())
		if err != nil {
			return err
		}

		messages, err = store.SelectDirectMessages(ctx, chatId)
		if err != nil {
			return err
		}

		flipped = len(ids)
		if flipped == 0 {
			return nil
		}
		return r.GetUpdatesStore().MessagesRead(&models.MessagesRead{
			UpdateMeta: models.UpdateMeta{
				Timestamp: u.now(),
				Audience:  []string{chat.UserA, chat.UserB},
			},
			ChatID:     chatId,
			Reader:     claims.UserID(),
			MessageIDs: ids,
		})
	})

	if err != nil {
		return nil, wrapError(err)
	}
	if flipped > 0 {
		metrics.MessagesMarkedRead.Add(float64(flipped))
	}
	return messages, nil
}

// SendGroup appends a message to the group. Membership is checked inside the
// transaction on every call.
func (u *MessagesUsecase) SendGroup(ctx context.Context, claims *auth.UserClaims, groupId string, msg models.MessageSend) (*models.GroupMessage, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}

	content, image, err := normalizeMessage(msg)
	if err != nil {
		return nil, err
	}
	if !ValidateUUID(groupId) {
		return nil, ErrGroupNotFound
	}

	var message *models.GroupMessage
	err = u.registry.Atomic(ctx, func(r storage.Registry) error {
		if err := syncProfile(ctx, r, claims); err != nil {
			return err
		}

		groups := r.GetGroupsStore()
		if err := checkMembership(ctx, groups, groupId, claims.UserID()); err != nil {
			return err
		}

		now := u.now()
		message = &models.GroupMessage{
			MessageID: uuid.NewString(),
			GroupID:   groupId,
			SenderID:  claims.UserID(),
			Content:   content,
			ImageRef:  image,
			CreatedAt: now,
		}

		if err := r.GetMessagesStore().PutGroupMessage(ctx, message); err != nil {
			return err
		}
		sender, err := profileOf(ctx, r, message.SenderID)
		if err != nil {
			return err
		}
		message.Sender = sender

		members, err := groups.GetMembers(ctx, groupId)
		if err != nil {
			return err
		}
		audience := make([]string, len(members))
		for i, m := range members {
			audience[i] = m.UserID
		}

		return r.GetUpdatesStore().GroupMessageSent(&models.GroupMessageSent{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  audience,
			},
			MessageID: message.MessageID,
			FromUser:  message.SenderID,
			GroupID:   groupId,
			Content:   content,
			ImageRef:  image,
		})
	})

	if err != nil {
		return nil, wrapError(err)
	}
	metrics.MessagesSent.WithLabelValues("group").Inc()
	return message, nil
}

// ListGroup returns the group history oldest first. Anonymous viewers may
// read any group; an authenticated viewer must be a member.
func (u *MessagesUsecase) ListGroup(ctx context.Context, claims *auth.UserClaims, groupId string) ([]models.GroupMessage, error) {
	if !ValidateUUID(groupId) {
		return nil, ErrGroupNotFound
	}

	groups := u.registry.GetGroupsStore()
	var err error
	if claims != nil {
		err = checkMembership(ctx, groups, groupId, claims.UserID())
	} else {
		_, err = groups.GetGroup(ctx, groupId)
	}
	if err != nil {
		return nil, wrapError(err)
	}

	messages, err := u.registry.GetMessagesStore().SelectGroupMessages(ctx, groupId)
	if err != nil {
		return nil, wrapError(err)
	}
	return messages, nil
}
