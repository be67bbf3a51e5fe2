package usecases

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

type GroupsUsecase struct {
	registry storage.Registry
	now      func() time.Time
}

func NewGroupsUsecase(r storage.Registry) *GroupsUsecase {
	return &GroupsUsecase{
		registry: r,
		now:      utcNow,
	}
}

// CreateGroup creates the group and enrolls the caller as its admin.
func (u *GroupsUsecase) CreateGroup(ctx context.Context, claims *auth.UserClaims, create models.GroupCreate) (*models.Group, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}

	name := strings.TrimSpace(create.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxGroupNameLength {
		return nil, ErrInvalidGroupName
	}

	now := u.now()
	group := &models.Group{
		GroupID:     uuid.NewString(),
		Name:        name,
		Description: optional(strings.TrimSpace(create.Description)),
		ImageRef:    optional(strings.TrimSpace(create.ImageRef)),
		CreatorID:   claims.UserID(),
		CreatedAt:   now,
	}

	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if err := syncProfile(ctx, r, claims); err != nil {
			return err
		}

		store := r.GetGroupsStore()
		if err := store.CreateGroup(ctx, group); err != nil {
			return err
		}

		_, err := store.AddMember(ctx, &models.GroupMember{
			GroupID:  group.GroupID,
			UserID:   claims.UserID(),
			Role:     models.RoleAdmin,
			JoinedAt: now,
		})
		return err
	})

	if err != nil {
		return nil, wrapError(err)
	}
	return group, nil
}

// GetGroup returns the group with its members. Anonymous viewers get the same
// data with both viewer flags unset.
func (u *GroupsUsecase) GetGroup(ctx context.Context, claims *auth.UserClaims, groupId string) (*models.GroupDetails, error) {
	if !ValidateUUID(groupId) {
		return nil, ErrGroupNotFound
	}

	store := u.registry.GetGroupsStore()
	group, err := store.GetGroup(ctx, groupId)
	if err != nil {
		return nil, wrapError(err)
	}

	members, err := store.GetMembers(ctx, groupId)
	if err != nil {
		return nil, wrapError(err)
	}

	creator, err := profileOf(ctx, u.registry, group.CreatorID)
	if err != nil {
		return nil, wrapError(err)
	}

	details := &models.GroupDetails{
		Group:   *group,
		Creator: *creator,
		Members: members,
	}
	if claims != nil {
		for _, m := range members {
			if m.UserID == claims.UserID() {
				details.IsJoined = true
				details.IsAdmin = m.Role == models.RoleAdmin
				break
			}
		}
	}
	return details, nil
}

// ListGroups searches groups by name, newest first. An empty query lists all.
func (u *GroupsUsecase) ListGroups(ctx context.Context, claims *auth.UserClaims, query string) ([]models.GroupSummary, error) {
	if claims == nil {
		return nil, ErrAuthenticationRequired
	}

	groups, err := u.registry.GetGroupsStore().SearchGroups(ctx, claims.UserID(), strings.TrimSpace(query))
	return groups, wrapError(err)
}

// JoinGroup enrolls the caller as a member. Joining twice changes nothing.
func (u *GroupsUsecase) JoinGroup(ctx context.Context, claims *auth.UserClaims, groupId string) error {
	if claims == nil {
		return ErrAuthenticationRequired
	}
	if !ValidateUUID(groupId) {
		return ErrGroupNotFound
	}

	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if err := syncProfile(ctx, r, claims); err != nil {
			return err
		}
		_, err := r.GetGroupsStore().AddMember(ctx, &models.GroupMember{
			GroupID:  groupId,
			UserID:   claims.UserID(),
			Role:     models.RoleMember,
			JoinedAt: u.now(),
		})
		return err
	})
	return wrapError(err)
}

// LeaveGroup removes the caller from the group. The creator must delete the
// group instead.
func (u *GroupsUsecase) LeaveGroup(ctx context.Context, claims *auth.UserClaims, groupId string) error {
	if claims == nil {
		return ErrAuthenticationRequired
	}
	if !ValidateUUID(groupId) {
		return ErrGroupNotFound
	}

	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetGroupsStore()
		group, err := store.GetGroup(ctx, groupId)
		if err != nil {
			return err
		}
		if group.CreatorID == claims.UserID() {
			return ErrCreatorCannotLeave
		}
		return store.RemoveMember(ctx, groupId, claims.UserID())
	})
	return wrapError(err)
}

// DeleteGroup removes the group with its members and messages. Only admins
// may do this.
func (u *GroupsUsecase) DeleteGroup(ctx context.Context, claims *auth.UserClaims, groupId string) error {
	if claims == nil {
		return ErrAuthenticationRequired
	}
	if !ValidateUUID(groupId) {
		return ErrGroupNotFound
	}

	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetGroupsStore()
		if _, err := store.GetGroup(ctx, groupId); err != nil {
			return err
		}

		member, err := store.GetMember(ctx, groupId, claims.UserID())
		if errors.Is(err, storage.ErrNotAMember) {
			return ErrOnlyAdminCanDelete
		} else if err != nil {
			return err
		}
		if member.Role != models.RoleAdmin {
			return ErrOnlyAdminCanDelete
		}

		return store.DeleteGroup(ctx, groupId)
	})
	return wrapError(err)
}
