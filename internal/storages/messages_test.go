package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MessagesStorageTestSuite struct {
	PostgresTestSuite
	chat *models.DirectChat
}

func TestMessagesStorageTestSuite(t *testing.T) {
	suite.Run(t, &MessagesStorageTestSuite{})
}

func (s *MessagesStorageTestSuite) SetupTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.chat = newChat("u1", "u2", baseTime)
	_, err := NewChatsStorage(s.db).CreateChat(ctx, s.chat)
	require.NoError(s.T(), err, "can't setup test")
}

func (s *MessagesStorageTestSuite) message(sender string, content *string, at time.Time) *models.DirectMessage {
	return &models.DirectMessage{
		MessageID: uuid.NewString(),
		ChatID:    s.chat.ChatID,
		SenderID:  sender,
		Content:   content,
		CreatedAt: at,
	}
}

func (s *MessagesStorageTestSuite) Test_PutDirectMessage() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMessagesStorage(s.db)
	first := s.message("u1", text("hi"), baseTime)
	second := s.message("u2", text("hey"), baseTime)
	require.NoError(s.T(), store.PutDirectMessage(ctx, first))
	require.NoError(s.T(), store.PutDirectMessage(ctx, second))
	assert.Greater(s.T(), second.Seq, first.Seq, "sequence should grow with insertion")

	assert.ErrorIs(s.T(), store.PutDirectMessage(ctx, first), ErrMessageAlreadyExists)

	orphan := s.message("u1", text("hi"), baseTime)
	orphan.ChatID = uuid.NewString()
	assert.ErrorIs(s.T(), store.PutDirectMessage(ctx, orphan), ErrChatNotFound)

	assert.ErrorIs(s.T(), store.PutDirectMessage(ctx, s.message("u1", nil, baseTime)), ErrEmptyMessage)

	image := s.message("u1", nil, baseTime)
	image.ImageRef = text("https://cdn.example.com/a.png")
	assert.NoError(s.T(), store.PutDirectMessage(ctx, image), "image only message is valid")
}

func (s *MessagesStorageTestSuite) Test_SelectDirectMessages_Order() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMessagesStorage(s.db)
	late := s.message("u1", text("late"), baseTime.Add(time.Minute))
	tieA := s.message("u2", text("tie a"), baseTime)
	tieB := s.message("u1", text("tie b"), baseTime)
	for _, m := range []*models.DirectMessage{late, tieA, tieB} {
		require.NoError(s.T(), store.PutDirectMessage(ctx, m))
	}

	messages, err := store.SelectDirectMessages(ctx, s.chat.ChatID)
	require.NoError(s.T(), err)
	require.Len(s.T(), messages, 3)
	assert.Equal(s.T(), tieA.MessageID, messages[0].MessageID, "ties are broken by insertion order")
	assert.Equal(s.T(), tieB.MessageID, messages[1].MessageID)
	assert.Equal(s.T(), late.MessageID, messages[2].MessageID)
}

func (s *MessagesStorageTestSuite) Test_MarkRead() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMessagesStorage(s.db)
	fromU1 := s.message("u1", text("hi"), baseTime)
	fromU2 := s.message("u2", text("hey"), baseTime.Add(time.Second))
	require.NoError(s.T(), store.PutDirectMessage(ctx, fromU1))
	require.NoError(s.T(), store.PutDirectMessage(ctx, fromU2))

	ids, err := store.MarkRead(ctx, s.chat.ChatID, "u2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{fromU1.MessageID}, ids, "only messages from the peer are flipped")

	ids, err = store.MarkRead(ctx, s.chat.ChatID, "u2")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), ids, "already read messages are untouched")

	messages, err := store.SelectDirectMessages(ctx, s.chat.ChatID)
	require.NoError(s.T(), err)
	assert.True(s.T(), messages[0].Read)
	assert.False(s.T(), messages[1].Read)
}

func (s *MessagesStorageTestSuite) Test_MarkRead_Concurrent() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMessagesStorage(s.db)
	for i := 0; i < 5; i++ {
		require.NoError(s.T(), store.PutDirectMessage(ctx, s.message("u1", text("hi"), baseTime.Add(time.Duration(i)*time.Second))))
	}

	registry := NewRegistry(s.db, nil, nil)
	const readers = 4
	flipped := make([]int, readers)

	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := registry.Atomic(ctx, func(r Registry) error {
				ids, err := r.GetMessagesStore().MarkRead(ctx, s.chat.ChatID, "u2")
				flipped[i] = len(ids)
				return err
			})
			assert.NoError(s.T(), err)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range flipped {
		total += n
	}
	assert.Equal(s.T(), 5, total, "every message is flipped exactly once")
}

func (s *MessagesStorageTestSuite) Test_GroupMessages() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	group := &models.Group{GroupID: uuid.NewString(), Name: "gophers", CreatorID: "u1", CreatedAt: baseTime}
	require.NoError(s.T(), NewGroupsStorage(s.db).CreateGroup(ctx, group))

	require.NoError(s.T(), NewProfilesStorage(s.db).UpsertProfile(ctx, &models.Profile{UserID: "u1", Username: "gopher", DisplayName: "Gopher"}))

	store := NewMessagesStorage(s.db)
	first := &models.GroupMessage{MessageID: uuid.NewString(), GroupID: group.GroupID, SenderID: "u1", Content: text("one"), CreatedAt: baseTime}
	second := &models.GroupMessage{MessageID: uuid.NewString(), GroupID: group.GroupID, SenderID: "u2", Content: text("two"), CreatedAt: baseTime}
	require.NoError(s.T(), store.PutGroupMessage(ctx, first))
	require.NoError(s.T(), store.PutGroupMessage(ctx, second))

	orphan := &models.GroupMessage{MessageID: uuid.NewString(), GroupID: uuid.NewString(), SenderID: "u1", Content: text("x"), CreatedAt: baseTime}
	assert.ErrorIs(s.T(), store.PutGroupMessage(ctx, orphan), ErrGroupNotFound)

	messages, err := store.SelectGroupMessages(ctx, group.GroupID)
	require.NoError(s.T(), err)
	require.Len(s.T(), messages, 2)
	assert.Equal(s.T(), first.MessageID, messages[0].MessageID)
	assert.Equal(s.T(), second.MessageID, messages[1].MessageID)

	require.NotNil(s.T(), messages[0].Sender)
	assert.Equal(s.T(), "Gopher", messages[0].Sender.DisplayName)
	require.NotNil(s.T(), messages[1].Sender)
	assert.Equal(s.T(), models.Profile{UserID: "u2"}, *messages[1].Sender)
}
