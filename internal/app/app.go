// Package app assembles the stores and services shared by the api, the worker
// and lemurctl.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/authmode"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/cache"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/database"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/galette"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/handlers"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/roles"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/session"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/storage"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/tasks"
)

type Container struct {
	Config *config.AppConfig
	Log    zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client

	Users    *repository.UserRepository
	Options  *repository.OptionRepository
	Roles    *repository.RoleRepository
	Pages    *repository.PageRepository
	TaskRepo *repository.TaskRepository

	Registry *capability.Registry
	Checker  *capability.Checker
	Modes    *authmode.Switch
	Sessions *session.Manager
	Sync     *roles.Synchronizer
	Galette  *galette.Client
	Themes   *storage.ThemeStore

	Auth     *service.AuthService
	Members  *service.MemberService
	Tasks    *service.TaskService
	Settings *service.SettingsService
	Accounts *service.AccountService
}

// New connects to Postgres and Redis and builds every service. The Galette
// verifier and the theme store are only built when configured.
func New(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*Container, error) {
	db, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Redis:    rdb,
		Users:    repository.NewUserRepository(db),
		Options:  repository.NewOptionRepository(db),
		Roles:    repository.NewRoleRepository(db),
		Pages:    repository.NewPageRepository(db),
		TaskRepo: repository.NewTaskRepository(db),
	}

	c.Registry = capability.NewRegistry(c.Roles, log)
	c.Checker = capability.NewChecker(c.Users, c.Roles, log)
	c.Modes = authmode.NewSwitch(c.Options, c.Users, cfg.ExternalAuthAvailable(), log)
	c.Sessions = session.NewManager(session.NewStore(rdb), c.Options, cfg.Security.FingerprintSecret, cfg.Auth.DefaultSessionDays, log)
	c.Sync = roles.NewSynchronizer(c.Users, roles.NewGroupMapping(cfg.Galette.BureauGroups, cfg.Galette.MemberGroups), log)

	if cfg.Galette.BaseURL != "" {
		c.Galette = galette.NewClient(cfg.Galette.BaseURL, cfg.Galette.APIToken, cfg.Galette.ClientTimeout)
	}

	var verifier service.IdentityVerifier
	if cfg.ExternalAuthAvailable() {
		v, err := galette.NewVerifier(cfg.Galette, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("galette verifier: %w", err)
		}
		verifier = v
	}

	if cfg.Storage.Endpoint != "" {
		themes, err := storage.NewThemeStore(cfg.Storage)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("theme store: %w", err)
		}
		c.Themes = themes
	}

	c.Auth = service.NewAuthService(c.Users, c.Modes, c.Sessions, c.Sync, verifier, cfg, log)
	c.Members = service.NewMemberService(c.Users, cfg.Security.MemberIDSecret)
	c.Tasks = service.NewTaskService(c.TaskRepo)
	c.Settings = service.NewSettingsService(c.Options, c.Modes, c.Sessions, cfg.ExternalAuthAvailable())
	c.Accounts = service.NewAccountService(c.Users, c.Sessions, log)

	return c, nil
}

// Bootstrap applies migrations and makes sure the club roles exist with their
// capabilities granted to administrators.
func (c *Container) Bootstrap(ctx context.Context) error {
	if err := database.Migrate(c.Config.Postgres, c.Log); err != nil {
		return err
	}
	if err := c.Registry.RegisterRoles(ctx); err != nil {
		return fmt.Errorf("register roles: %w", err)
	}
	if err := c.Registry.GrantToAdministrator(ctx); err != nil {
		return fmt.Errorf("grant administrator: %w", err)
	}
	if c.Themes != nil {
		if err := c.Themes.EnsureBucket(ctx); err != nil {
			c.Log.Warn().Err(err).Msg("ensure theme bucket failed")
		}
	}
	return nil
}

func (c *Container) HandlerSet() handlers.HandlerSet {
	var themes guard.TemplateSource
	if c.Themes != nil {
		themes = c.Themes
	}

	return handlers.NewHandlerSet(c.Log, c.Config, handlers.Deps{
		Auth:     c.Auth,
		Members:  c.Members,
		Tasks:    c.Tasks,
		Settings: c.Settings,
		Modes:    c.Modes,
		Guard:    guard.New(c.Checker, c.Pages, themes, c.Config.Guard.ProtectedSlugs, c.Config.Guard.LoginPath, c.Log),
		Checker:  c.Checker,
		Database: c.DB.Ping,
		Cache: func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		},
	})
}

func (c *Container) Processor() *tasks.Processor {
	var groups tasks.GroupSource
	if c.Galette != nil {
		groups = c.Galette
	}
	return tasks.NewProcessor(c.Users, groups, c.Sync, c.Sessions, c.Log)
}

func (c *Container) Close() {
	c.DB.Close()
	if err := c.Redis.Close(); err != nil {
		c.Log.Error().Err(err).Msg("redis close error")
	}
}
