// Package memory implements the storage registry on process memory. It backs
// the service in development mode and the usecase and transport tests.
package memory

import (
	"context"
	"sync"

	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
	"github.com/sirupsen/logrus"
)

type pair struct {
	low, high string
}

type state struct {
	chats         map[string]models.DirectChat
	pairs         map[pair]string
	directs       []models.DirectMessage
	groups        map[string]models.Group
	members       map[string]map[string]models.GroupMember
	groupMessages []models.GroupMessage
	profiles      map[string]models.Profile
	seq           int64
}

func newState() *state {
	return &state{
		chats:    make(map[string]models.DirectChat),
		pairs:    make(map[pair]string),
		groups:   make(map[string]models.Group),
		members:  make(map[string]map[string]models.GroupMember),
		profiles: make(map[string]models.Profile),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.chats {
		c.chats[k] = v
	}
	for k, v := range s.pairs {
		c.pairs[k] = v
	}
	c.directs = append(make([]models.DirectMessage, 0, len(s.directs)), s.directs...)
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for g, members := range s.members {
		copied := make(map[string]models.GroupMember, len(members))
		for k, v := range members {
			copied[k] = v
		}
		c.members[g] = copied
	}
	c.groupMessages = append(make([]models.GroupMessage, 0, len(s.groupMessages)), s.groupMessages...)
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	c.seq = s.seq
	return c
}

// profile returns a copy of the mirrored profile, or a bare one.
func (s *state) profile(userId string) *models.Profile {
	p, ok := s.profiles[userId]
	if !ok {
		p = models.Unknown(userId)
	}
	return &p
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

// Database is the shared in-memory state. Transactions are serialized and
// work on a copy that replaces the state only on success.
type Database struct {
	mu      sync.Mutex
	st      *state
	updates storage.UpdatesStore
	logger  *logrus.Logger
}

func NewDatabase(updates storage.UpdatesStore, logger *logrus.Logger) *Database {
	if updates == nil {
		updates = storage.NopUpdates{}
	}
	return &Database{
		st:      newState(),
		updates: updates,
		logger:  logger,
	}
}

// Registry returns a registry working outside of any transaction.
func (d *Database) Registry() *Registry {
	return &Registry{db: d}
}

type Registry struct {
	db     *Database
	tx     *state
	buffer *storage.UpdatesBuffer
}

func NewRegistry(updates storage.UpdatesStore, logger *logrus.Logger) *Registry {
	return NewDatabase(updates, logger).Registry()
}

func (r *Registry) Atomic(ctx context.Context, fn storage.AtomicFunc) error {
	if r.tx != nil {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buffer, err := r.runTx(fn)
	if err != nil {
		return err
	}
	buffer.Flush(r.db.logger)
	return nil
}

func (r *Registry) runTx(fn storage.AtomicFunc) (*storage.UpdatesBuffer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx := &Registry{
		db:     r.db,
		tx:     r.db.st.clone(),
		buffer: storage.NewUpdatesBuffer(r.db.updates),
	}
	if err := fn(tx); err != nil {
		return nil, err
	}
	r.db.st = tx.tx
	return tx.buffer, nil
}

func (r *Registry) view(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return fn(r.db.st)
}

func (r *Registry) GetChatsStore() storage.ChatsStore {
	return &chatsStore{r: r}
}

func (r *Registry) GetMessagesStore() storage.MessagesStore {
	return &messagesStore{r: r}
}

func (r *Registry) GetGroupsStore() storage.GroupsStore {
	return &groupsStore{r: r}
}

func (r *Registry) GetProfilesStore() storage.ProfilesStore {
	return &profilesStore{r: r}
}

func (r *Registry) GetUpdatesStore() storage.UpdatesStore {
	if r.buffer != nil {
		return r.buffer
	}
	return r.db.updates
}
