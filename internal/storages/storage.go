package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/sirupsen/logrus"
)

type AtomicFunc func(Registry) error

// Registry hands out stores bound to the same scope. Stores obtained inside
// Atomic share one transaction; updates published there are delivered only
// after the transaction commits.
type Registry interface {
	Atomic(ctx context.Context, fn AtomicFunc) error
	GetChatsStore() ChatsStore
	GetMessagesStore() MessagesStore
	GetGroupsStore() GroupsStore
	GetProfilesStore() ProfilesStore
	GetUpdatesStore() UpdatesStore
}

type ChatsStore interface {
	CreateChat(ctx context.Context, chat *models.DirectChat) (bool, error)
	GetChat(ctx context.Context, chatId string) (*models.DirectChat, error)
	GetChatByPair(ctx context.Context, x, y string) (*models.DirectChat, error)
	LockChat(ctx context.Context, chatId string) (*models.DirectChat, error)
	TouchChat(ctx context.Context, chatId string, at time.Time) error
	GetUserChats(ctx context.Context, userId string) ([]models.ChatPreview, error)
}

type MessagesStore interface {
	PutDirectMessage(ctx context.Context, message *models.DirectMessage) error
	MarkRead(ctx context.Context, chatId string, readerId string) ([]string, error)
	SelectDirectMessages(ctx context.Context, chatId string) ([]models.DirectMessage, error)
	PutGroupMessage(ctx context.Context, message *models.GroupMessage) error
	SelectGroupMessages(ctx context.Context, groupId string) ([]models.GroupMessage, error)
}

type GroupsStore interface {
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupId string) (*models.Group, error)
	DeleteGroup(ctx context.Context, groupId string) error
	SearchGroups(ctx context.Context, viewerId string, query string) ([]models.GroupSummary, error)
	AddMember(ctx context.Context, member *models.GroupMember) (bool, error)
	RemoveMember(ctx context.Context, groupId string, userId string) error
	GetMember(ctx context.Context, groupId string, userId string) (*models.GroupMember, error)
	GetMembers(ctx context.Context, groupId string) ([]models.GroupMember, error)
	UserIsMember(ctx context.Context, groupId string, userId string) (bool, error)
}

type ProfilesStore interface {
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, userId string) (*models.Profile, error)
}

type DefaultRegistry struct {
	db      *sqlx.DB
	scope   Scope
	updates UpdatesStore
	buffer  *UpdatesBuffer
	logger  *logrus.Logger
}

type Scope interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	sqlx.Execer
	sqlx.Queryer
	Get(dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExec(query string, arg interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	NamedQuery(query string, arg interface{}) (*sqlx.Rows, error)
}

func NewRegistry(db *sqlx.DB, updates UpdatesStore, logger *logrus.Logger) *DefaultRegistry {
	if updates == nil {
		updates = NopUpdates{}
	}
	return &DefaultRegistry{
		db:      db,
		scope:   db,
		updates: updates,
		logger:  logger,
	}
}

func (r *DefaultRegistry) Atomic(ctx context.Context, fn AtomicFunc) (err error) {
	// nested calls join the running transaction
	if r.buffer != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	buffer := NewUpdatesBuffer(r.updates)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("rollback caused by error: \"%v\" failed: %v", err, rbErr)
			}
		} else {
			err = tx.Commit()
			if err == nil {
				buffer.Flush(r.logger)
			}
		}
	}()

	storage := DefaultRegistry{
		db:      r.db,
		scope:   tx,
		updates: r.updates,
		buffer:  buffer,
		logger:  r.logger,
	}
	err = fn(&storage)
	return err
}

func (r *DefaultRegistry) GetChatsStore() ChatsStore {
	return NewChatsStorage(r.scope)
}

func (r *DefaultRegistry) GetMessagesStore() MessagesStore {
	return NewMessagesStorage(r.scope)
}

func (r *DefaultRegistry) GetGroupsStore() GroupsStore {
	return NewGroupsStorage(r.scope)
}

func (r *DefaultRegistry) GetProfilesStore() ProfilesStore {
	return NewProfilesStorage(r.scope)
}

func (r *DefaultRegistry) GetUpdatesStore() UpdatesStore {
	if r.buffer != nil {
		return r.buffer
	}
	return r.updates
}
