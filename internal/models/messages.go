package models

import "time"

type DirectMessage struct {
	MessageID string    `json:"id" db:"message_id"`
	Seq       int64     `json:"-" db:"seq"`
	ChatID    string    `json:"chat_id" db:"chat_id"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Content   *string   `json:"content" db:"content"`
	ImageRef  *string   `json:"image" db:"image_ref"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Sender    *Profile  `json:"sender,omitempty" db:"-"`
}

type GroupMessage struct {
	MessageID string    `json:"id" db:"message_id"`
	Seq       int64     `json:"-" db:"seq"`
	GroupID   string    `json:"group_id" db:"group_id"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Content   *string   `json:"content" db:"content"`
	ImageRef  *string   `json:"image" db:"image_ref"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Sender    *Profile  `json:"sender,omitempty" db:"-"`
}

// MessageSend is the payload of a send request, shared by direct and group
// messages.
type MessageSend struct {
	Content  string
	ImageRef string
}
