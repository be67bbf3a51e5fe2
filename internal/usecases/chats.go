package usecases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/metrics"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

type ChatsUsecase struct {
	registry storage.Registry
	now      func() time.Time
}

func NewChatsUsecase(r storage.Registry) *ChatsUsecase {
	return &ChatsUsecase{
		registry: r,
		now:      utcNow,
	}
}

// utcNow is truncated to the precision the database keeps, so values returned
// to callers equal what later reads return.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// syncProfile mirrors the caller's public profile from the token claims.
func syncProfile(ctx context.Context, r storage.Registry, claims *auth.UserClaims) error {
	if !claims.HasProfile() {
		return nil
	}
	profile := claims.Profile()
	return r.GetProfilesStore().UpsertProfile(ctx, &profile)
}

// profileOf returns the mirrored profile of the user, or a bare profile
// carrying only the id when none was mirrored yet.
func profileOf(ctx context.Context, r storage.Registry, userId string) (*models.Profile, error) {
	profile, err := r.GetProfilesStore().GetProfile(ctx, userId)
	if errors.Is(err, storage.ErrProfileNotFound) {
		unknown := models.Unknown(userId)
		return &unknown, nil
	}
	return profile, err
}

// CreateOrGetChat returns the one direct chat between the caller and target,
// creating it on first contact. Calls from either side return the same chat.
func (u *ChatsUsecase) CreateOrGetChat(ctx context.Context, claims *auth.UserClaims, target string) (*models.DirectChat, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}

	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrEmptyTarget
	}
	if target == claims.UserID() {
		return nil, ErrSelfChat
	}

	var chat *models.DirectChat
	created := false
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if err := syncProfile(ctx, r, claims); err != nil {
			return err
		}

		store := r.GetChatsStore()
		var err error
		chat, err = store.GetChatByPair(ctx, claims.UserID(), target)
		if err == nil || !errors.Is(err, storage.ErrChatNotFound) {
			return err
		}

		now := u.now()
		candidate := &models.DirectChat{
			ChatID:    uuid.NewString(),
			UserA:     claims.UserID(),
			UserB:     target,
			CreatedAt: now,
			UpdatedAt: now,
		}

		created, err = store.CreateChat(ctx, candidate)
		if err != nil {
			return err
		}

		if !created {
			// The peer created the chat concurrently.
			chat, err = store.GetChatByPair(ctx, claims.UserID(), target)
			return err
		}

		chat = candidate
		return r.GetUpdatesStore().ChatCreated(&models.ChatCreated{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  []string{candidate.UserA, candidate.UserB},
			},
			ChatID: candidate.ChatID,
			UserA:  candidate.UserA,
			UserB:  candidate.UserB,
		})
	})

	if err != nil {
		return nil, wrapError(err)
	}
	if created {
		metrics.ChatsCreated.Inc()
	}
	return chat, nil
}

// GetUserChats lists the caller's chats, most recently active first.
func (u *ChatsUsecase) GetUserChats(ctx context.Context, claims *auth.UserClaims) ([]models.ChatPreview, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}

	chats, err := u.registry.GetChatsStore().GetUserChats(ctx, claims.UserID())
	return chats, wrapError(err)
}

// GetChat returns the chat with the profile of the caller's peer.
func (u *ChatsUsecase) GetChat(ctx context.Context, claims *auth.UserClaims, chatId string) (*models.ChatDetails, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}
	if !ValidateUUID(chatId) {
		return nil, ErrChatNotFound
	}

	chat, err := u.registry.GetChatsStore().GetChat(ctx, chatId)
	if err != nil {
		return nil, wrapError(err)
	}
	if !chat.HasParticipant(claims.UserID()) {
		return nil, ErrUserIsNotAChatMember
	}

	profile, err := profileOf(ctx, u.registry, chat.Peer(claims.UserID()))
	if err != nil {
		return nil, wrapError(err)
	}

	return &models.ChatDetails{
		DirectChat: *chat,
		OtherUser:  *profile,
	}, nil
}
