package storage

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

var (
	ErrGroupNotFound = errors.New("group with provided group_id does not exist")
	ErrNotAMember    = errors.New("user is not a member of the group")
)

const (
	GroupsPrimaryKey        = "chat_groups_pkey"
	GroupMembersPrimaryKey  = "group_members_pkey"
	GroupMembersGroupIdFKey = "group_members_group_id_fkey"
	groupColumnsList        = "group_id, name, description, image_ref, creator_id, created_at"
	groupMemberColumnsList  = "group_id, user_id, role, joined_at"
)

type GroupsStorage struct {
	db Scope
}

func NewGroupsStorage(db Scope) *GroupsStorage {
	return &GroupsStorage{
		db: db,
	}
}

func (s *GroupsStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	query, args, err := sq.Insert("chat_groups").
		Columns("group_id", "name", "description", "image_ref", "creator_id", "created_at").
		Values(group.GroupID, group.Name, group.Description, group.ImageRef, group.CreatorID, group.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *GroupsStorage) GetGroup(ctx context.Context, groupId string) (*models.Group, error) {
	query, args, err := sq.Select(groupColumnsList).
		From("chat_groups").
		Where(sq.Eq{"group_id": groupId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	group := models.Group{}
	err = s.db.GetContext(ctx, &group, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	} else if err != nil {
		return nil, err
	}
	return &group, nil
}

// DeleteGroup removes the group together with its members and messages.
func (s *GroupsStorage) DeleteGroup(ctx context.Context, groupId string) error {
	query, args, err := sq.Delete("chat_groups").
		Where(sq.Eq{"group_id": groupId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// SearchGroups lists groups newest first. An empty query matches every group;
// otherwise the name must contain it, case-insensitively.
func (s *GroupsStorage) SearchGroups(ctx context.Context, viewerId string, query string) ([]models.GroupSummary, error) {
	builder := sq.Select("g.group_id", "g.name", "g.description", "g.image_ref", "g.creator_id", "g.created_at").
		Column("(SELECT count(*) FROM group_members m WHERE m.group_id = g.group_id) AS member_count").
		Column(sq.Expr("EXISTS(SELECT 1 FROM group_members m WHERE m.group_id = g.group_id AND m.user_id = ?) AS is_joined", viewerId)).
		From("chat_groups g").
		OrderBy("g.created_at DESC", "g.group_id").
		PlaceholderFormat(sq.Dollar)

	if query != "" {
		builder = builder.Where(sq.ILike{"g.name": containsPattern(query)})
	}

	sqlQuery, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	groups := make([]models.GroupSummary, 0)
	if err = s.db.SelectContext(ctx, &groups, sqlQuery, args...); err != nil {
		return nil, err
	}
	return groups, nil
}

// AddMember enrolls the user. It reports false when the user already was a member.
func (s *GroupsStorage) AddMember(ctx context.Context, member *models.GroupMember) (bool, error) {
	query, args, err := sq.Insert("group_members").
		Columns("group_id", "user_id", "role", "joined_at").
		Values(member.GroupID, member.UserID, member.Role, member.JoinedAt).
		Suffix("ON CONFLICT ON CONSTRAINT " + GroupMembersPrimaryKey + " DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)

	if GetPgxConstraintName(err) == GroupMembersGroupIdFKey {
		return false, ErrGroupNotFound
	} else if err != nil {
		return false, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GroupsStorage) RemoveMember(ctx context.Context, groupId string, userId string) error {
	query, args, err := sq.Delete("group_members").
		Where(sq.Eq{"group_id": groupId, "user_id": userId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotAMember
	}
	return nil
}

func (s *GroupsStorage) GetMember(ctx context.Context, groupId string, userId string) (*models.GroupMember, error) {
	query, args, err := sq.Select(groupMemberColumnsList).
		From("group_members").
		Where(sq.Eq{"group_id": groupId, "user_id": userId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	member := models.GroupMember{}
	err = s.db.GetContext(ctx, &member, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotAMember
	} else if err != nil {
		return nil, err
	}
	return &member, nil
}

type groupMemberRow struct {
	models.GroupMember
	senderRow
}

// GetMembers lists members in joining order together with their mirrored
// profiles.
func (s *GroupsStorage) GetMembers(ctx context.Context, groupId string) ([]models.GroupMember, error) {
	query, args, err := sq.Select("m.group_id", "m.user_id", "m.role", "m.joined_at").
		Columns(senderColumns...).
		From("group_members m").
		LeftJoin("user_profiles p ON p.user_id = m.user_id").
		Where(sq.Eq{"m.group_id": groupId}).
		OrderBy("m.joined_at ASC", "m.user_id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	rows := make([]groupMemberRow, 0)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	members := make([]models.GroupMember, len(rows))
	for i, row := range rows {
		members[i] = row.GroupMember
		members[i].User = row.profile(row.UserID)
	}
	return members, nil
}

// UserIsMember checks the membership row. It fails with ErrGroupNotFound when
// the group itself does not exist.
func (s *GroupsStorage) UserIsMember(ctx context.Context, groupId string, userId string) (bool, error) {
	if _, err := s.GetGroup(ctx, groupId); err != nil {
		return false, err
	}

	query, args, err := sq.Select("1").
		Prefix("SELECT EXISTS(").
		From("group_members").
		Where(sq.Eq{"group_id": groupId, "user_id": userId}).
		Suffix(")").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	ok := false
	err = s.db.QueryRowxContext(ctx, query, args...).Scan(&ok)
	return ok, err
}
