package storage

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/messaging-service/migrations"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// PostgresTestSuite runs against the database in DB_DSN. MIGRATIONS_DSN is
// the same database in the pgx:// form golang-migrate understands.
type PostgresTestSuite struct {
	suite.Suite
	db *sqlx.DB
	m  *migrate.Migrate
}

func (s *PostgresTestSuite) SetupSuite() {
	var err error
	viper.AutomaticEnv()
	dbDsn := viper.GetString("DB_DSN")
	migrationsDsn := viper.GetString("MIGRATIONS_DSN")

	if dbDsn == "" || migrationsDsn == "" {
		s.T().Skip("DB_DSN and MIGRATIONS_DSN must be defined to run postgres tests")
	}

	s.db, err = sqlx.Connect("pgx", dbDsn)
	require.NoError(s.T(), err, "failed to connect to database")

	s.m, err = migrations.New(migrationsDsn)
	require.NoError(s.T(), err, "failed to open migrations")

	err = s.m.Up()
	if err != migrate.ErrNoChange {
		require.NoError(s.T(), err, "failed to migrate database")
	}
}

func (s *PostgresTestSuite) TearDownSuite() {
	if s.m != nil {
		_ = s.m.Down()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *PostgresTestSuite) TearDownTest() {
	_, err := s.db.Exec("TRUNCATE group_messages, group_members, chat_groups, direct_messages, direct_chats, user_profiles")
	require.NoError(s.T(), err, "can't teardown test")
}
