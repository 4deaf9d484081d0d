package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/authmode"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/middleware"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
)

const apiPrefix = "/api/lemur/v1"

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Auth     *service.AuthService
	Members  *service.MemberService
	Tasks    *service.TaskService
	Settings *service.SettingsService
	Modes    *authmode.Switch
	Guard    *guard.Guard
	Checker  guard.Checker
	Database HealthCheck
	Cache    HealthCheck
}

type HandlerSet struct {
	log        zerolog.Logger
	cfg        *config.AppConfig
	auth       *service.AuthService
	members    *service.MemberService
	tasks      *service.TaskService
	settings   *service.SettingsService
	modes      *authmode.Switch
	guard      *guard.Guard
	checker    guard.Checker
	dbPing     HealthCheck
	cachePing  HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	return HandlerSet{
		log:        log,
		cfg:        cfg,
		auth:       deps.Auth,
		members:    deps.Members,
		tasks:      deps.Tasks,
		settings:   deps.Settings,
		modes:      deps.Modes,
		guard:      deps.Guard,
		checker:    deps.Checker,
		dbPing:     deps.Database,
		cachePing:  deps.Cache,
	}
}

func (h HandlerSet) Register(router *gin.Engine) {
	router.SetHTMLTemplate(Templates())
	router.Use(middleware.Session(h.auth, h.guard, h.cfg.Security, h.log))

	router.GET("/healthz", h.Health)

	loginPath := h.cfg.Guard.LoginPath
	router.GET(loginPath, h.LoginPage)
	router.POST(loginPath, h.LocalLogin)
	router.POST(loginPath+"/oauth", h.ExternalLogin)
	router.POST("/deconnexion", h.Logout)

	api := router.Group(apiPrefix)
	{
		api.GET("/cache-version", h.CacheVersion)

		me := api.Group("/me", middleware.RequireUser())
		me.GET("", h.Me)
		me.POST("/password", h.ChangePassword)

		members := api.Group("/members", middleware.RequireCapability(h.checker, capability.ReadMemberArea))
		members.GET("", h.ListMembers)
		members.GET("/count", h.CountMembers)

		tasks := api.Group("/tasks", middleware.RequireCapability(h.checker, capability.EditTodos))
		tasks.GET("", h.ListTasks)
		tasks.PATCH("/:id", h.UpdateTask)
		tasks.PATCH("/:id/checklist", h.UpdateChecklist)

		admin := api.Group("", middleware.RequireCapability(h.checker, capability.ManageOptions))
		admin.POST("/cache-version/bump", h.BumpCacheVersion)
		admin.GET("/settings/auth", h.GetAuthSettings)
		admin.PUT("/settings/auth", h.UpdateAuthSettings)
	}

	router.GET("/", h.guard.Protect(), h.Page)
	router.GET("/:slug", h.guard.Protect(), h.Page)
}
