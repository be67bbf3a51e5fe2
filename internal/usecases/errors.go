package usecases

import (
	"context"
	"errors"
	"fmt"

	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrPermissionDenied       = errors.New("user is not authorized to this action")
	ErrUserIsNotAChatMember   = fmt.Errorf("%w: user is not a chat participant", ErrPermissionDenied)
	ErrUserIsNotAGroupMember  = fmt.Errorf("%w: user is not a group member", ErrPermissionDenied)
	ErrOnlyAdminCanDelete     = fmt.Errorf("%w: only group admins can delete the group", ErrPermissionDenied)

	ErrBusinessLogicViolation = errors.New("business logic violation")
	ErrEmptyMessage           = fmt.Errorf("%w: message cannot be empty", ErrBusinessLogicViolation)
	ErrMessageTooLong         = fmt.Errorf("%w: message is too long", ErrBusinessLogicViolation)
	ErrSelfChat               = fmt.Errorf("%w: cannot create a chat with yourself", ErrBusinessLogicViolation)
	ErrEmptyTarget            = fmt.Errorf("%w: chat partner is required", ErrBusinessLogicViolation)
	ErrInvalidGroupName       = fmt.Errorf("%w: group name must be 1-%d characters", ErrBusinessLogicViolation, MaxGroupNameLength)
	ErrCreatorCannotLeave     = fmt.Errorf("%w: group creator cannot leave the group, delete the group instead", ErrBusinessLogicViolation)

	ErrNotFound           = errors.New("not found")
	ErrChatNotFound       = fmt.Errorf("%w: chat", ErrNotFound)
	ErrGroupNotFound      = fmt.Errorf("%w: group", ErrNotFound)
	ErrMembershipNotFound = fmt.Errorf("%w: membership", ErrNotFound)

	ErrStore = errors.New("store error")
)

var storageErrors = []struct {
	from error
	to   error
}{
	{storage.ErrChatNotFound, ErrChatNotFound},
	{storage.ErrGroupNotFound, ErrGroupNotFound},
	{storage.ErrNotAMember, ErrMembershipNotFound},
	{storage.ErrSelfChat, ErrSelfChat},
	{storage.ErrEmptyMessage, ErrEmptyMessage},
}

// wrapError turns a storage failure into the usecase error taxonomy. Errors
// that already belong to the taxonomy pass through unchanged; anything the
// caller cannot act on becomes ErrStore.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	for _, known := range []error{ErrAuthenticationRequired, ErrPermissionDenied, ErrBusinessLogicViolation, ErrNotFound, ErrStore} {
		if errors.Is(err, known) {
			return err
		}
	}

	for _, mapping := range storageErrors {
		if errors.Is(err, mapping.from) {
			return mapping.to
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrStore, err)
}
