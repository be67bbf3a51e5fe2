package usecases

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

const (
	MaxContentLength   = 4000
	MaxGroupNameLength = 100
)

func ValidateUUID(rawUUID string) bool {
	_, err := uuid.Parse(rawUUID)
	return err == nil
}

// normalizeMessage trims the payload and checks that something is left to send.
func normalizeMessage(msg models.MessageSend) (content *string, image *string, err error) {
	text := strings.TrimSpace(msg.Content)
	ref := strings.TrimSpace(msg.ImageRef)

	if text == "" && ref == "" {
		return nil, nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxContentLength {
		return nil, nil, ErrMessageTooLong
	}

	return optional(text), optional(ref), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
