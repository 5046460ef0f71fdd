package router

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/chambitas-auth/config"
	"github.com/oksasatya/chambitas-auth/internal/application"
	"github.com/oksasatya/chambitas-auth/internal/container"
	repo "github.com/oksasatya/chambitas-auth/internal/domain/repository"
	"github.com/oksasatya/chambitas-auth/internal/infrastructure/esindex"
	"github.com/oksasatya/chambitas-auth/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/chambitas-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/chambitas-auth/internal/infrastructure/redisstore"
	handlers "github.com/oksasatya/chambitas-auth/internal/interface/http"
	"github.com/oksasatya/chambitas-auth/internal/router/modules"
	"github.com/oksasatya/chambitas-auth/pkg/helpers"
	"github.com/oksasatya/chambitas-auth/pkg/mailer"
)

// Deps is everything the HTTP modules need.
type Deps struct {
	Service      *application.Service
	Auth         *handlers.AuthHandler
	Users        *handlers.UserHandler
	DebugMetrics bool
}

// BuildDeps wires the service and handlers from the container singletons.
func BuildDeps() (Deps, error) {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	userRepo, err := buildRepository(cfg)
	if err != nil {
		return Deps{}, err
	}
	sender, err := buildMailSender(cfg, logger)
	if err != nil {
		return Deps{}, err
	}
	var dir application.UserDirectory
	if es := container.GetES(); es != nil {
		dir = esindex.NewUserIndex(es, cfg.ESUsersIndex)
	}

	service := application.NewService(
		userRepo,
		helpers.NewBcryptHasher(cfg.BcryptCost),
		helpers.NewTokenCodec(container.GetJWT()),
		sender,
		dir,
		logger,
		application.Options{
			VerifyEmailURL:  cfg.VerifyEmailURL,
			VerifySubject:   cfg.MailVerifySubject,
			MailSendTimeout: cfg.MailSendTimeout,
		},
	)

	return Deps{
		Service:      service,
		Auth:         handlers.NewAuthHandler(service, logger, cfg.LoginURL),
		Users:        handlers.NewUserHandler(service),
		DebugMetrics: cfg.DebugMetricsEnabled,
	}, nil
}

func buildRepository(cfg *config.Config) (repo.UserRepository, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool := container.GetPGPool()
		if pool == nil {
			return nil, errors.New("postgres storage selected but no pool configured")
		}
		return pginfra.NewUserRepository(pool), nil
	case config.StorageRedis:
		rdb := container.GetRedis()
		if rdb == nil {
			return nil, errors.New("redis storage selected but no client configured")
		}
		return redisstore.NewUserRepository(rdb), nil
	case config.StorageMemory, "":
		return memory.NewUserRepository(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func buildMailSender(cfg *config.Config, logger *logrus.Logger) (application.EmailSender, error) {
	switch cfg.EffectiveMailTransport() {
	case config.MailMailgun:
		mg := container.GetMailgun()
		if mg == nil {
			return nil, errors.New("mailgun transport selected but not configured")
		}
		return mailer.NewMailgunSender(mg, cfg.AppName), nil
	case config.MailRabbitMQ:
		pub := container.GetRabbitPub()
		if pub == nil {
			return nil, errors.New("rabbitmq transport selected but no publisher configured")
		}
		return mailer.NewQueueSender(pub, cfg.AppName), nil
	default:
		return mailer.NewLogSender(logger), nil
	}
}

// Mount adds every module to the registry.
func Mount(r *Registry, d Deps) {
	r.Add(
		modules.NewHealthModule(),
		modules.NewAuthModule(d.Auth, d.Service),
		modules.NewUserModule(d.Users, d.Service),
	)
	if d.DebugMetrics {
		r.Add(modules.NewDebugModule())
	}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) error {
	d, err := BuildDeps()
	if err != nil {
		return err
	}
	Mount(r, d)
	return nil
}
