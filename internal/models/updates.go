package models

import "time"

type UpdateMeta struct {
	Timestamp time.Time
	Audience  []string
}

type ChatCreated struct {
	UpdateMeta
	ChatID string `validate:"required,uuid"`
	UserA  string `validate:"required"`
	UserB  string `validate:"required"`
}

type MessageSent struct {
	UpdateMeta
	MessageID string `validate:"required,uuid"`
	FromUser  string `validate:"required"`
	ChatID    string `validate:"required,uuid"`
	Content   *string
	ImageRef  *string
}

type MessagesRead struct {
	UpdateMeta
	ChatID     string `validate:"required,uuid"`
	Reader     string `validate:"required"`
	MessageIDs []string
}

type GroupMessageSent struct {
	UpdateMeta
	MessageID string `validate:"required,uuid"`
	FromUser  string `validate:"required"`
	GroupID   string `validate:"required,uuid"`
	Content   *string
	ImageRef  *string
}
