// Package client is a Go client for the messaging API. Besides plain request
// helpers it implements the polling side of the sync protocol: the server
// never pushes, so views refetch on a fixed cadence and right after a send.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

type Chat struct {
	ID        string    `json:"chat_id"`
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatPreview struct {
	Chat
	OtherUser   Profile  `json:"other_user"`
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}

// Message is either a direct or a group message. Read is always false for
// group messages.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id,omitempty"`
	GroupID   string    `json:"group_id,omitempty"`
	SenderID  string    `json:"sender_id"`
	Content   *string   `json:"content"`
	Image     *string   `json:"image"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	Sender    *Profile  `json:"sender,omitempty"`
}

type ChatsPage struct {
	Chats        []ChatPreview
	PollInterval time.Duration
}

type MessagesPage struct {
	Messages     []Message
	PollInterval time.Duration
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging api error %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL string, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type sendRequest struct {
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
}

type messagesResponse struct {
	Messages       []Message `json:"messages"`
	PollIntervalMs int64     `json:"poll_interval_ms"`
}

func (r *messagesResponse) page() *MessagesPage {
	return &MessagesPage{
		Messages:     r.Messages,
		PollInterval: time.Duration(r.PollIntervalMs) * time.Millisecond,
	}
}

// CreateChat returns the direct chat with userID, creating it if needed.
func (c *Client) CreateChat(ctx context.Context, userID string) (*Chat, error) {
	chat := &Chat{}
	err := c.doRequest(ctx, http.MethodPost, "/chats", map[string]string{"user_id": userID}, chat)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (c *Client) ListChats(ctx context.Context) (*ChatsPage, error) {
	var resp struct {
		Chats          []ChatPreview `json:"chats"`
		PollIntervalMs int64         `json:"poll_interval_ms"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/chats", nil, &resp); err != nil {
		return nil, err
	}
	return &ChatsPage{
		Chats:        resp.Chats,
		PollInterval: time.Duration(resp.PollIntervalMs) * time.Millisecond,
	}, nil
}

// ListMessages fetches the chat history. The server marks the messages
// addressed to the caller as read.
func (c *Client) ListMessages(ctx context.Context, chatID string) (*MessagesPage, error) {
	resp := messagesResponse{}
	if err := c.doRequest(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.page(), nil
}

func (c *Client) SendMessage(ctx context.Context, chatID string, content string, image string) (*Message, error) {
	msg := &Message{}
	err := c.doRequest(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", sendRequest{Content: content, Image: image}, msg)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Client) ListGroupMessages(ctx context.Context, groupID string) (*MessagesPage, error) {
	resp := messagesResponse{}
	if err := c.doRequest(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.page(), nil
}

func (c *Client) SendGroupMessage(ctx context.Context, groupID string, content string, image string) (*Message, error) {
	msg := &Message{}
	err := c.doRequest(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/messages", sendRequest{Content: content, Image: image}, msg)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
