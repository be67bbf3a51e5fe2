package models

import "time"

type DirectChat struct {
	ChatID    string    `json:"chat_id" db:"chat_id"`
	UserA     string    `json:"user_a" db:"user_a"`
	UserB     string    `json:"user_b" db:"user_b"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether userId is one of the two chat members.
func (c *DirectChat) HasParticipant(userId string) bool {
	return c.UserA == userId || c.UserB == userId
}

// Peer returns the participant that is not userId.
func (c *DirectChat) Peer(userId string) string {
	if c.UserA == userId {
		return c.UserB
	}
	return c.UserA
}

// OrderedPair returns the two ids ordered bytewise. The ordered pair is the
// storage key of a direct chat; the pair columns use the "C" collation so the
// database agrees with this order.
func OrderedPair(x, y string) (low, high string) {
	if x < y {
		return x, y
	}
	return y, x
}

type ChatDetails struct {
	DirectChat
	OtherUser Profile `json:"other_user"`
}

type ChatPreview struct {
	ChatDetails
	LastMessage *DirectMessage `json:"last_message"`
	UnreadCount int            `json:"unread_count"`
}
