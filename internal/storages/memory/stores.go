package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

type chatsStore struct {
	r *Registry
}

func (s *chatsStore) CreateChat(_ context.Context, chat *models.DirectChat) (bool, error) {
	if chat.UserA == chat.UserB {
		return false, storage.ErrSelfChat
	}
	created := false
	err := s.r.view(func(st *state) error {
		low, high := models.OrderedPair(chat.UserA, chat.UserB)
		key := pair{low: low, high: high}
		if _, ok := st.pairs[key]; ok {
			return nil
		}
		if _, ok := st.chats[chat.ChatID]; ok {
			return nil
		}
		st.chats[chat.ChatID] = *chat
		st.pairs[key] = chat.ChatID
		created = true
		return nil
	})
	return created, err
}

func (s *chatsStore) GetChat(_ context.Context, chatId string) (*models.DirectChat, error) {
	var chat models.DirectChat
	err := s.r.view(func(st *state) error {
		found, ok := st.chats[chatId]
		if !ok {
			return storage.ErrChatNotFound
		}
		chat = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *chatsStore) GetChatByPair(ctx context.Context, x, y string) (*models.DirectChat, error) {
	low, high := models.OrderedPair(x, y)
	var chatId string
	err := s.r.view(func(st *state) error {
		id, ok := st.pairs[pair{low: low, high: high}]
		if !ok {
			return storage.ErrChatNotFound
		}
		chatId = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetChat(ctx, chatId)
}

func (s *chatsStore) LockChat(ctx context.Context, chatId string) (*models.DirectChat, error) {
	return s.GetChat(ctx, chatId)
}

func (s *chatsStore) TouchChat(_ context.Context, chatId string, at time.Time) error {
	return s.r.view(func(st *state) error {
		chat, ok := st.chats[chatId]
		if !ok {
			return storage.ErrChatNotFound
		}
		if at.After(chat.UpdatedAt) {
			chat.UpdatedAt = at
			st.chats[chatId] = chat
		}
		return nil
	})
}

func (s *chatsStore) GetUserChats(_ context.Context, userId string) ([]models.ChatPreview, error) {
	previews := make([]models.ChatPreview, 0)
	err := s.r.view(func(st *state) error {
		index := make(map[string]int)
		for _, chat := range st.chats {
			if !chat.HasParticipant(userId) {
				continue
			}
			peer := chat.Peer(userId)
			profile, ok := st.profiles[peer]
			if !ok {
				profile = models.Profile{UserID: peer}
			}
			index[chat.ChatID] = len(previews)
			previews = append(previews, models.ChatPreview{
				ChatDetails: models.ChatDetails{
					DirectChat: chat,
					OtherUser:  profile,
				},
			})
		}

		for _, msg := range st.directs {
			i, ok := index[msg.ChatID]
			if !ok {
				continue
			}
			last := previews[i].LastMessage
			if last == nil || !messageBefore(msg.CreatedAt, msg.Seq, last.CreatedAt, last.Seq) {
				m := msg
				previews[i].LastMessage = &m
			}
			if msg.SenderID != userId && !msg.Read {
				previews[i].UnreadCount++
			}
		}
		return nil
	})

	sort.SliceStable(previews, func(i, j int) bool {
		a, b := previews[i], previews[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ChatID < b.ChatID
	})
	return previews, err
}

func messageBefore(at time.Time, seq int64, otherAt time.Time, otherSeq int64) bool {
	if !at.Equal(otherAt) {
		return at.Before(otherAt)
	}
	return seq < otherSeq
}

type messagesStore struct {
	r *Registry
}

func (s *messagesStore) PutDirectMessage(_ context.Context, message *models.DirectMessage) error {
	if message.Content == nil && message.ImageRef == nil {
		return storage.ErrEmptyMessage
	}
	return s.r.view(func(st *state) error {
		if _, ok := st.chats[message.ChatID]; !ok {
			return storage.ErrChatNotFound
		}
		for _, m := range st.directs {
			if m.MessageID == message.MessageID {
				return storage.ErrMessageAlreadyExists
			}
		}
		message.Seq = st.nextSeq()
		st.directs = append(st.directs, *message)
		return nil
	})
}

func (s *messagesStore) MarkRead(_ context.Context, chatId string, readerId string) ([]string, error) {
	ids := make([]string, 0)
	err := s.r.view(func(st *state) error {
		for i := range st.directs {
			m := &st.directs[i]
			if m.ChatID == chatId && m.SenderID != readerId && !m.Read {
				m.Read = true
				ids = append(ids, m.MessageID)
			}
		}
		return nil
	})
	return ids, err
}

func (s *messagesStore) SelectDirectMessages(_ context.Context, chatId string) ([]models.DirectMessage, error) {
	messages := make([]models.DirectMessage, 0)
	err := s.r.view(func(st *state) error {
		for _, m := range st.directs {
			if m.ChatID == chatId {
				m.Sender = st.profile(m.SenderID)
				messages = append(messages, m)
			}
		}
		return nil
	})
	sort.SliceStable(messages, func(i, j int) bool {
		return messageBefore(messages[i].CreatedAt, messages[i].Seq, messages[j].CreatedAt, messages[j].Seq)
	})
	return messages, err
}

func (s *messagesStore) PutGroupMessage(_ context.Context, message *models.GroupMessage) error {
	if message.Content == nil && message.ImageRef == nil {
		return storage.ErrEmptyMessage
	}
	return s.r.view(func(st *state) error {
		if _, ok := st.groups[message.GroupID]; !ok {
			return storage.ErrGroupNotFound
		}
		for _, m := range st.groupMessages {
			if m.MessageID == message.MessageID {
				return storage.ErrMessageAlreadyExists
			}
		}
		message.Seq = st.nextSeq()
		st.groupMessages = append(st.groupMessages, *message)
		return nil
	})
}

func (s *messagesStore) SelectGroupMessages(_ context.Context, groupId string) ([]models.GroupMessage, error) {
	messages := make([]models.GroupMessage, 0)
	err := s.r.view(func(st *state) error {
		for _, m := range st.groupMessages {
			if m.GroupID == groupId {
				m.Sender = st.profile(m.SenderID)
				messages = append(messages, m)
			}
		}
		return nil
	})
	sort.SliceStable(messages, func(i, j int) bool {
		return messageBefore(messages[i].CreatedAt, messages[i].Seq, messages[j].CreatedAt, messages[j].Seq)
	})
	return messages, err
}

type groupsStore struct {
	r *Registry
}

func (s *groupsStore) CreateGroup(_ context.Context, group *models.Group) error {
	return s.r.view(func(st *state) error {
		st.groups[group.GroupID] = *group
		st.members[group.GroupID] = make(map[string]models.GroupMember)
		return nil
	})
}

func (s *groupsStore) GetGroup(_ context.Context, groupId string) (*models.Group, error) {
	var group models.Group
	err := s.r.view(func(st *state) error {
		found, ok := st.groups[groupId]
		if !ok {
			return storage.ErrGroupNotFound
		}
		group = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *groupsStore) DeleteGroup(_ context.Context, groupId string) error {
	return s.r.view(func(st *state) error {
		if _, ok := st.groups[groupId]; !ok {
			return storage.ErrGroupNotFound
		}
		delete(st.groups, groupId)
		delete(st.members, groupId)
		kept := st.groupMessages[:0]
		for _, m := range st.groupMessages {
			if m.GroupID != groupId {
				kept = append(kept, m)
			}
		}
		st.groupMessages = kept
		return nil
	})
}

func (s *groupsStore) SearchGroups(_ context.Context, viewerId string, query string) ([]models.GroupSummary, error) {
	query = strings.ToLower(query)
	groups := make([]models.GroupSummary, 0)
	err := s.r.view(func(st *state) error {
		for _, g := range st.groups {
			if query != "" && !strings.Contains(strings.ToLower(g.Name), query) {
				continue
			}
			_, joined := st.members[g.GroupID][viewerId]
			groups = append(groups, models.GroupSummary{
				Group:       g,
				MemberCount: len(st.members[g.GroupID]),
				IsJoined:    joined,
			})
		}
		return nil
	})
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.GroupID < b.GroupID
	})
	return groups, err
}

func (s *groupsStore) AddMember(_ context.Context, member *models.GroupMember) (bool, error) {
	added := false
	err := s.r.view(func(st *state) error {
		members, ok := st.members[member.GroupID]
		if !ok {
			return storage.ErrGroupNotFound
		}
		if _, exists := members[member.UserID]; exists {
			return nil
		}
		members[member.UserID] = *member
		added = true
		return nil
	})
	return added, err
}

func (s *groupsStore) RemoveMember(_ context.Context, groupId string, userId string) error {
	return s.r.view(func(st *state) error {
		if _, ok := st.members[groupId][userId]; !ok {
			return storage.ErrNotAMember
		}
		delete(st.members[groupId], userId)
		return nil
	})
}

func (s *groupsStore) GetMember(_ context.Context, groupId string, userId string) (*models.GroupMember, error) {
	var member models.GroupMember
	err := s.r.view(func(st *state) error {
		found, ok := st.members[groupId][userId]
		if !ok {
			return storage.ErrNotAMember
		}
		member = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *groupsStore) GetMembers(_ context.Context, groupId string) ([]models.GroupMember, error) {
	members := make([]models.GroupMember, 0)
	err := s.r.view(func(st *state) error {
		for _, m := range st.members[groupId] {
			m.User = st.profile(m.UserID)
			members = append(members, m)
		}
		return nil
	})
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	return members, err
}

func (s *groupsStore) UserIsMember(_ context.Context, groupId string, userId string) (bool, error) {
	isMember := false
	err := s.r.view(func(st *state) error {
		if _, ok := st.groups[groupId]; !ok {
			return storage.ErrGroupNotFound
		}
		_, isMember = st.members[groupId][userId]
		return nil
	})
	return isMember, err
}

type profilesStore struct {
	r *Registry
}

func (s *profilesStore) UpsertProfile(_ context.Context, profile *models.Profile) error {
	return s.r.view(func(st *state) error {
		st.profiles[profile.UserID] = *profile
		return nil
	})
}

func (s *profilesStore) GetProfile(_ context.Context, userId string) (*models.Profile, error) {
	var profile models.Profile
	err := s.r.view(func(st *state) error {
		found, ok := st.profiles[userId]
		if !ok {
			return storage.ErrProfileNotFound
		}
		profile = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
