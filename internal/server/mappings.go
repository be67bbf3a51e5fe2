package server

import (
	"time"

	"github.com/practice-sem-2/messaging-service/internal/models"
)

type createChatRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"max=8000"`
	Image   string `json:"image" validate:"max=2048"`
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Image       string `json:"image" validate:"max=2048"`
}

type chatsResponse struct {
	Chats          []models.ChatPreview `json:"chats"`
	PollIntervalMs int64                `json:"poll_interval_ms"`
}

type directMessagesResponse struct {
	Messages       []models.DirectMessage `json:"messages"`
	PollIntervalMs int64                  `json:"poll_interval_ms"`
}

type groupMessagesResponse struct {
	Messages       []models.GroupMessage `json:"messages"`
	PollIntervalMs int64                 `json:"poll_interval_ms"`
}

type groupsResponse struct {
	Groups []models.GroupSummary `json:"groups"`
}

func SendRequestToModel(r *sendMessageRequest) models.MessageSend {
	return models.MessageSend{
		Content:  r.Content,
		ImageRef: r.Image,
	}
}

func CreateGroupRequestToModel(r *createGroupRequest) models.GroupCreate {
	return models.GroupCreate{
		Name:        r.Name,
		Description: r.Description,
		ImageRef:    r.Image,
	}
}

func millis(d time.Duration) int64 {
	return d.Milliseconds()
}
