package storage

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

var ErrProfileNotFound = errors.New("profile does not exist")

type ProfilesStorage struct {
	db Scope
}

func NewProfilesStorage(db Scope) *ProfilesStorage {
	return &ProfilesStorage{
		db: db,
	}
}

// UpsertProfile stores the latest known public profile of a user.
func (s *ProfilesStorage) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	query, args, err := sq.Insert("user_profiles").
		Columns("user_id", "username", "display_name", "avatar_url", "updated_at").
		Values(profile.UserID, profile.Username, profile.DisplayName, profile.AvatarURL, sq.Expr("now()")).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *ProfilesStorage) GetProfile(ctx context.Context, userId string) (*models.Profile, error) {
	query, args, err := sq.Select("user_id", "username", "display_name", "avatar_url").
		From("user_profiles").
		Where(sq.Eq{"user_id": userId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	profile := models.Profile{}
	err = s.db.GetContext(ctx, &profile, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	} else if err != nil {
		return nil, err
	}
	return &profile, nil
}
