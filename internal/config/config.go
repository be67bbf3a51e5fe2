package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Storage       string
	DBDsn         string
	MigrationsDsn string
	KafkaBrokers  []string
	UpdatesTopic  string
	RedisURL      string
	JWTPublicKey  string
	JWTSecret     string
	GRPCAddr      string
	CORSOrigins   []string
	PollChats     time.Duration
	PollMessages  time.Duration
	SendLimit     int
	SendWindow    time.Duration
	ShutdownGrace time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORAGE", StoragePostgres)
	v.SetDefault("UPDATES_TOPIC", "messaging.updates")
	v.SetDefault("GRPC_ADDR", "0.0.0.0:9090")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("POLL_CHATS_INTERVAL", 30*time.Second)
	v.SetDefault("POLL_MESSAGES_INTERVAL", 5*time.Second)
	v.SetDefault("SEND_RATE_LIMIT", 30)
	v.SetDefault("SEND_RATE_WINDOW", time.Minute)
	v.SetDefault("SHUTDOWN_GRACE", 10*time.Second)
}

func splitList(raw string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// migrationsDsn falls back to DB_DSN rewritten to the pgx:// scheme that
// golang-migrate expects.
func migrationsDsn(explicit string, dbDsn string) string {
	if explicit != "" {
		return explicit
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dbDsn, scheme) {
			return "pgx://" + strings.TrimPrefix(dbDsn, scheme)
		}
	}
	return dbDsn
}

// Load reads the configuration from the environment. Variables from a .env
// file in the working directory are loaded first and never override the
// real environment.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return &Config{
		Storage:       strings.ToLower(v.GetString("STORAGE")),
		DBDsn:         v.GetString("DB_DSN"),
		MigrationsDsn: migrationsDsn(v.GetString("MIGRATIONS_DSN"), v.GetString("DB_DSN")),
		KafkaBrokers:  splitList(v.GetString("KAFKA_BROKERS")),
		UpdatesTopic:  v.GetString("UPDATES_TOPIC"),
		RedisURL:      v.GetString("REDIS_URL"),
		JWTPublicKey:  v.GetString("JWT_PUBLIC_KEY_PATH"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		GRPCAddr:      v.GetString("GRPC_ADDR"),
		CORSOrigins:   splitList(v.GetString("CORS_ORIGINS")),
		PollChats:     v.GetDuration("POLL_CHATS_INTERVAL"),
		PollMessages:  v.GetDuration("POLL_MESSAGES_INTERVAL"),
		SendLimit:     v.GetInt("SEND_RATE_LIMIT"),
		SendWindow:    v.GetDuration("SEND_RATE_WINDOW"),
		ShutdownGrace: v.GetDuration("SHUTDOWN_GRACE"),
	}
}
