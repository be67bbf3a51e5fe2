package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/practice-sem-2/messaging-service/internal/storages/memory"
	"github.com/stretchr/testify/suite"
)

type recordedUpdates struct {
	mu    sync.Mutex
	chats []*models.ChatCreated
	sent  []*models.MessageSent
	read  []*models.MessagesRead
	group []*models.GroupMessageSent
}

func (r *recordedUpdates) ChatCreated(chat *models.ChatCreated) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, chat)
	return nil
}

func (r *recordedUpdates) MessageSent(msg *models.MessageSent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordedUpdates) MessagesRead(read *models.MessagesRead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = append(r.read, read)
	return nil
}

func (r *recordedUpdates) GroupMessageSent(msg *models.GroupMessageSent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.group = append(r.group, msg)
	return nil
}

// clock hands out strictly increasing timestamps.
type clock struct {
	mu  sync.Mutex
	cur time.Time
}

func newClock() *clock {
	return &clock{cur: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func user(id string) *auth.UserClaims {
	return &auth.UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: id},
		Username:         id,
		Name:             "User " + id,
	}
}

type UsecasesTestSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	updates  *recordedUpdates
	chats    *ChatsUsecase
	messages *MessagesUsecase
	groups   *GroupsUsecase
}

func TestUsecasesTestSuite(t *testing.T) {
	suite.Run(t, &UsecasesTestSuite{})
}

func (s *UsecasesTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	s.updates = &recordedUpdates{}

	registry := memory.NewRegistry(s.updates, nil)
	c := newClock()

	s.chats = NewChatsUsecase(registry)
	s.chats.now = c.Now
	s.messages = NewMessagesUsecase(registry)
	s.messages.now = c.Now
	s.groups = NewGroupsUsecase(registry)
	s.groups.now = c.Now
}

func (s *UsecasesTestSuite) TearDownTest() {
	s.cancel()
}

func (s *UsecasesTestSuite) text(content string) models.MessageSend {
	return models.MessageSend{Content: content}
}

func (s *UsecasesTestSuite) Test_CreateOrGetChat_SameChatFromBothSides() {
	first, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	second, err := s.chats.CreateOrGetChat(s.ctx, user("u2"), "u1")
	s.Require().NoError(err)

	again, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	s.Equal(first.ChatID, second.ChatID, "reverse order should resolve to the same chat")
	s.Equal(first.ChatID, again.ChatID)
	s.Equal("u1", second.UserA, "initiator should be kept")
	s.Len(s.updates.chats, 1, "chat should be created exactly once")

	chats, err := s.chats.GetUserChats(s.ctx, user("u1"))
	s.Require().NoError(err)
	s.Len(chats, 1)
}

func (s *UsecasesTestSuite) Test_CreateOrGetChat_Concurrent() {
	const workers = 16
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			me, peer := "u1", "u2"
			if i%2 == 1 {
				me, peer = peer, me
			}
			chat, err := s.chats.CreateOrGetChat(s.ctx, user(me), peer)
			errs[i] = err
			if err == nil {
				ids[i] = chat.ChatID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}
	s.Len(s.updates.chats, 1)
}

func (s *UsecasesTestSuite) Test_CreateOrGetChat_Errors() {
	_, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u1")
	s.ErrorIs(err, ErrSelfChat)
	s.ErrorIs(err, ErrBusinessLogicViolation)

	_, err = s.chats.CreateOrGetChat(s.ctx, user("u1"), "  ")
	s.ErrorIs(err, ErrEmptyTarget)

	_, err = s.chats.CreateOrGetChat(s.ctx, nil, "u2")
	s.ErrorIs(err, ErrAuthenticationRequired)
}

func (s *UsecasesTestSuite) Test_SendDirect_Validation() {
	chat, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	_, err = s.messages.SendDirect(s.ctx, user("u1"), chat.ChatID, s.text("   "))
	s.ErrorIs(err, ErrEmptyMessage)

	msg, err := s.messages.SendDirect(s.ctx, user("u1"), chat.ChatID, models.MessageSend{ImageRef: "https://cdn.example.com/a.png"})
	s.Require().NoError(err, "image only message should be accepted")
	s.Nil(msg.Content)
	s.Require().NotNil(msg.ImageRef)
	s.Equal("https://cdn.example.com/a.png", *msg.ImageRef)

	msg, err = s.messages.SendDirect(s.ctx, user("u1"), chat.ChatID, s.text("  hi  "))
	s.Require().NoError(err)
	s.Require().NotNil(msg.Content)
	s.Equal("hi", *msg.Content, "content should be stored trimmed")
}

func (s *UsecasesTestSuite) Test_SendDirect_Authorization() {
	chat, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	_, err = s.messages.SendDirect(s.ctx, user("u3"), chat.ChatID, s.text("hi"))
	s.ErrorIs(err, ErrPermissionDenied)

	_, err = s.messages.ListDirect(s.ctx, user("u3"), chat.ChatID)
	s.ErrorIs(err, ErrUserIsNotAChatMember)

	_, err = s.messages.SendDirect(s.ctx, user("u1"), "d2b0e5a5-8b1f-4b8e-9d44-1f0f6b8d1c11", s.text("hi"))
	s.ErrorIs(err, ErrNotFound)

	_, err = s.messages.SendDirect(s.ctx, user("u1"), "not-a-uuid", s.text("hi"))
	s.ErrorIs(err, ErrChatNotFound)

	_, err = s.messages.SendDirect(s.ctx, nil, chat.ChatID, s.text("hi"))
	s.ErrorIs(err, ErrAuthenticationRequired)
}

func (s *UsecasesTestSuite) Test_ReadFlip() {
	chat, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	m1, err := s.messages.SendDirect(s.ctx, user("u1"), chat.ChatID, s.text("hi"))
	s.Require().NoError(err)
	s.False(m1.Read)

	// The sender viewing the chat does not flip their own messages.
	list, err := s.messages.ListDirect(s.ctx, user("u1"), chat.ChatID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.False(list[0].Read)
	s.Empty(s.updates.read)

	list, err = s.messages.ListDirect(s.ctx, user("u2"), chat.ChatID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(m1.MessageID, list[0].MessageID)
	s.True(list[0].Read, "peer listing should flip the message")
	s.Require().Len(s.updates.read, 1)
	s.Equal([]string{m1.MessageID}, s.updates.read[0].MessageIDs)

	list, err = s.messages.ListDirect(s.ctx, user("u2"), chat.ChatID)
	s.Require().NoError(err)
	s.True(list[0].Read)
	s.Len(s.updates.read, 1, "second listing should be a no-op")

	list, err = s.messages.ListDirect(s.ctx, user("u1"), chat.ChatID)
	s.Require().NoError(err)
	s.True(list[0].Read, "read never reverts")
}

func (s *UsecasesTestSuite) Test_Scenario() {
	c1, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	m1, err := s.messages.SendDirect(s.ctx, user("u1"), c1.ChatID, s.text("hi"))
	s.Require().NoError(err)
	s.False(m1.Read)

	previews, err := s.chats.GetUserChats(s.ctx, user("u2"))
	s.Require().NoError(err)
	s.Require().Len(previews, 1)
	s.Equal(1, previews[0].UnreadCount)
	s.Require().NotNil(previews[0].LastMessage)
	s.Equal(m1.MessageID, previews[0].LastMessage.MessageID)
	s.Equal("u1", previews[0].OtherUser.UserID)
	s.Equal("User u1", previews[0].OtherUser.DisplayName)

	list, err := s.messages.ListDirect(s.ctx, user("u2"), c1.ChatID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.True(list[0].Read)

	list, err = s.messages.ListDirect(s.ctx, user("u1"), c1.ChatID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(m1.MessageID, list[0].MessageID)
	s.True(list[0].Read)

	previews, err = s.chats.GetUserChats(s.ctx, user("u2"))
	s.Require().NoError(err)
	s.Equal(0, previews[0].UnreadCount)
}

func (s *UsecasesTestSuite) Test_ChatListOrdering() {
	t1, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "a")
	s.Require().NoError(err)
	t2, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "b")
	s.Require().NoError(err)
	t3, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "c")
	s.Require().NoError(err)

	chats, err := s.chats.GetUserChats(s.ctx, user("u1"))
	s.Require().NoError(err)
	s.Require().Len(chats, 3)
	s.Equal([]string{t3.ChatID, t2.ChatID, t1.ChatID}, []string{chats[0].ChatID, chats[1].ChatID, chats[2].ChatID})

	// A new message moves the oldest chat to the top.
	_, err = s.messages.SendDirect(s.ctx, user("a"), t1.ChatID, s.text("ping"))
	s.Require().NoError(err)

	chats, err = s.chats.GetUserChats(s.ctx, user("u1"))
	s.Require().NoError(err)
	s.Equal([]string{t1.ChatID, t3.ChatID, t2.ChatID}, []string{chats[0].ChatID, chats[1].ChatID, chats[2].ChatID})
}

func (s *UsecasesTestSuite) Test_MessagesOrder() {
	chat, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	var sent []string
	for i, text := range []string{"one", "two", "three"} {
		author := user("u1")
		if i%2 == 1 {
			author = user("u2")
		}
		msg, err := s.messages.SendDirect(s.ctx, author, chat.ChatID, s.text(text))
		s.Require().NoError(err)
		sent = append(sent, msg.MessageID)
	}

	list, err := s.messages.ListDirect(s.ctx, user("u1"), chat.ChatID)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	for i := range sent {
		s.Equal(sent[i], list[i].MessageID)
	}
	s.False(list[0].Read, "u1's own messages stay unread")
	s.True(list[1].Read)
}

func (s *UsecasesTestSuite) Test_GetChat() {
	chat, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	details, err := s.chats.GetChat(s.ctx, user("u1"), chat.ChatID)
	s.Require().NoError(err)
	s.Equal("u2", details.OtherUser.UserID, "unknown profile should fall back to the id")

	details, err = s.chats.GetChat(s.ctx, user("u2"), chat.ChatID)
	s.Require().NoError(err)
	s.Equal("u1", details.OtherUser.UserID)
	s.Equal("User u1", details.OtherUser.DisplayName)

	_, err = s.chats.GetChat(s.ctx, user("u3"), chat.ChatID)
	s.ErrorIs(err, ErrPermissionDenied)
}

func (s *UsecasesTestSuite) Test_GroupMessages_Membership() {
	group, err := s.groups.CreateGroup(s.ctx, user("owner"), models.GroupCreate{Name: "gophers"})
	s.Require().NoError(err)

	_, err = s.messages.SendGroup(s.ctx, user("u1"), group.GroupID, s.text("hello"))
	s.ErrorIs(err, ErrUserIsNotAGroupMember)

	_, err = s.messages.ListGroup(s.ctx, user("u1"), group.GroupID)
	s.ErrorIs(err, ErrPermissionDenied)

	s.Require().NoError(s.groups.JoinGroup(s.ctx, user("u1"), group.GroupID))

	msg, err := s.messages.SendGroup(s.ctx, user("u1"), group.GroupID, s.text("hello"))
	s.Require().NoError(err, "should succeed right after enrollment")
	s.Equal(group.GroupID, msg.GroupID)

	s.Require().Len(s.updates.group, 1)
	s.ElementsMatch([]string{"owner", "u1"}, s.updates.group[0].Audience)

	list, err := s.messages.ListGroup(s.ctx, nil, group.GroupID)
	s.Require().NoError(err, "anonymous viewers can read")
	s.Require().Len(list, 1)
	s.Equal(msg.MessageID, list[0].MessageID)

	s.Require().NoError(s.groups.LeaveGroup(s.ctx, user("u1"), group.GroupID))
	_, err = s.messages.SendGroup(s.ctx, user("u1"), group.GroupID, s.text("again"))
	s.ErrorIs(err, ErrUserIsNotAGroupMember, "membership is re-checked on every send")

	_, err = s.messages.SendGroup(s.ctx, user("u1"), "2f7a7c1e-7a47-4d3c-9a3d-5c8f0c6e3b10", s.text("hello"))
	s.ErrorIs(err, ErrGroupNotFound)

	_, err = s.messages.ListGroup(s.ctx, nil, "2f7a7c1e-7a47-4d3c-9a3d-5c8f0c6e3b10")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.messages.SendGroup(s.ctx, user("owner"), group.GroupID, models.MessageSend{})
	s.ErrorIs(err, ErrEmptyMessage)
}

func (s *UsecasesTestSuite) Test_GroupAdministration() {
	_, err := s.groups.CreateGroup(s.ctx, user("owner"), models.GroupCreate{Name: "   "})
	s.ErrorIs(err, ErrInvalidGroupName)

	group, err := s.groups.CreateGroup(s.ctx, user("owner"), models.GroupCreate{Name: " Gophers ", Description: "go"})
	s.Require().NoError(err)
	s.Equal("Gophers", group.Name)

	details, err := s.groups.GetGroup(s.ctx, user("owner"), group.GroupID)
	s.Require().NoError(err)
	s.True(details.IsJoined)
	s.True(details.IsAdmin)
	s.Require().Len(details.Members, 1)
	s.Equal(models.RoleAdmin, details.Members[0].Role)

	s.Require().NoError(s.groups.JoinGroup(s.ctx, user("u1"), group.GroupID))
	s.Require().NoError(s.groups.JoinGroup(s.ctx, user("u1"), group.GroupID), "joining twice is a no-op")

	summaries, err := s.groups.ListGroups(s.ctx, user("u1"), "goph")
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal(2, summaries[0].MemberCount)
	s.True(summaries[0].IsJoined)

	summaries, err = s.groups.ListGroups(s.ctx, user("u1"), "rust")
	s.Require().NoError(err)
	s.Empty(summaries)

	s.ErrorIs(s.groups.LeaveGroup(s.ctx, user("owner"), group.GroupID), ErrCreatorCannotLeave)
	s.ErrorIs(s.groups.LeaveGroup(s.ctx, user("u2"), group.GroupID), ErrMembershipNotFound)
	s.ErrorIs(s.groups.DeleteGroup(s.ctx, user("u1"), group.GroupID), ErrOnlyAdminCanDelete)
	s.ErrorIs(s.groups.DeleteGroup(s.ctx, user("u2"), group.GroupID), ErrPermissionDenied)

	s.Require().NoError(s.groups.DeleteGroup(s.ctx, user("owner"), group.GroupID))
	_, err = s.groups.GetGroup(s.ctx, user("owner"), group.GroupID)
	s.ErrorIs(err, ErrGroupNotFound)
}

func (s *UsecasesTestSuite) Test_CreateOrGetChat_MixedCaseIds() {
	lower, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "U2")
	s.Require().NoError(err)

	upper, err := s.chats.CreateOrGetChat(s.ctx, user("U2"), "u1")
	s.Require().NoError(err)
	s.Equal(lower.ChatID, upper.ChatID)

	other, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)
	s.NotEqual(lower.ChatID, other.ChatID, "ids differing in case are different users")
}

func (s *UsecasesTestSuite) Test_SenderProfiles() {
	group, err := s.groups.CreateGroup(s.ctx, user("owner"), models.GroupCreate{Name: "gophers"})
	s.Require().NoError(err)
	s.Require().NoError(s.groups.JoinGroup(s.ctx, user("u1"), group.GroupID))

	// no profile claims, so nothing is mirrored for this member
	bare := &auth.UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"}}
	s.Require().NoError(s.groups.JoinGroup(s.ctx, bare, group.GroupID))

	sent, err := s.messages.SendGroup(s.ctx, user("u1"), group.GroupID, s.text("hello"))
	s.Require().NoError(err)
	s.Require().NotNil(sent.Sender)
	s.Equal("User u1", sent.Sender.DisplayName)

	_, err = s.messages.SendGroup(s.ctx, bare, group.GroupID, s.text("hi"))
	s.Require().NoError(err)

	list, err := s.messages.ListGroup(s.ctx, nil, group.GroupID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Require().NotNil(list[0].Sender)
	s.Equal(models.Profile{UserID: "u1", Username: "u1", DisplayName: "User u1"}, *list[0].Sender)
	s.Require().NotNil(list[1].Sender)
	s.Equal(models.Profile{UserID: "u2"}, *list[1].Sender)

	details, err := s.groups.GetGroup(s.ctx, nil, group.GroupID)
	s.Require().NoError(err)
	s.Equal("User owner", details.Creator.DisplayName)
	s.Require().Len(details.Members, 3)
	for _, m := range details.Members {
		s.Require().NotNil(m.User, "member %s", m.UserID)
		s.Equal(m.UserID, m.User.UserID)
	}
	s.Equal("User u1", details.Members[1].User.DisplayName)

	chat, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u3")
	s.Require().NoError(err)
	direct, err := s.messages.SendDirect(s.ctx, user("u1"), chat.ChatID, s.text("hey"))
	s.Require().NoError(err)
	s.Require().NotNil(direct.Sender)
	s.Equal("u1", direct.Sender.Username)

	history, err := s.messages.ListDirect(s.ctx, user("u3"), chat.ChatID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Require().NotNil(history[0].Sender)
	s.Equal("User u1", history[0].Sender.DisplayName)
}

func (s *UsecasesTestSuite) Test_Rollback() {
	chat, err := s.chats.CreateOrGetChat(s.ctx, user("u1"), "u2")
	s.Require().NoError(err)

	// Stranger's send fails after the profile sync; nothing must be kept.
	_, err = s.messages.SendDirect(s.ctx, user("u3"), chat.ChatID, s.text("hi"))
	s.Require().Error(err)

	_, err = s.chats.registry.GetProfilesStore().GetProfile(s.ctx, "u3")
	s.Error(err, "profile upsert should be rolled back")
	s.Empty(s.updates.sent)
}
