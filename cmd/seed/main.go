package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/chambitas-auth/config"
	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
	repo "github.com/oksasatya/chambitas-auth/internal/domain/repository"
	pginfra "github.com/oksasatya/chambitas-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/chambitas-auth/internal/infrastructure/redisstore"
	"github.com/oksasatya/chambitas-auth/pkg/helpers"
)

// seed creates a verified demo account in the configured durable backend.
func main() {
	_ = godotenv.Load()

	name := flag.String("name", "Demo User", "display name")
	email := flag.String("email", "demo@chambitas.local", "login email")
	password := flag.String("password", "demo-password", "plaintext password")
	flag.Parse()

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var users repo.UserRepository
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			logger.WithError(err).Fatal("migrate")
		}
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), pginfra.PoolOptions{MaxConns: 2, MinConns: 1, MaxConnLife: time.Minute})
		if err != nil {
			logger.WithError(err).Fatal("postgres")
		}
		defer pool.Close()
		users = pginfra.NewUserRepository(pool)
	case config.StorageRedis:
		rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("redis")
		}
		defer func() { _ = rdb.Close() }()
		users = redisstore.NewUserRepository(rdb)
	default:
		logger.WithField("driver", cfg.StorageDriver).Fatal("seeding needs STORAGE_DRIVER=postgres or redis")
	}

	hash, err := helpers.NewBcryptHasher(cfg.BcryptCost).Hash(*password)
	if err != nil {
		logger.WithError(err).Fatal("hash password")
	}
	token, err := helpers.NewTokenCodec(nil).IssueVerificationToken()
	if err != nil {
		logger.WithError(err).Fatal("issue token")
	}

	u := entity.NewPendingUser(*name, *email, hash, token, entity.DefaultRoles())
	if err := users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			logger.WithField("email", *email).Info("seed user already exists")
			return
		}
		logger.WithError(err).Fatal("create user")
	}
	if _, err := users.MarkVerified(ctx, u.ID); err != nil {
		logger.WithError(err).Fatal("mark verified")
	}
	logger.WithFields(logrus.Fields{"user_id": u.ID, "email": *email}).Info("seed user created")
}
