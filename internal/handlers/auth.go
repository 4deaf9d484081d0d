package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/authmode"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/ids"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/middleware"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
)

const (
	defaultLanding  = "/espace-membre"
	securityNotice  = "Pour votre sécurité, votre session a été fermée. Veuillez vous reconnecter."
	loggedOutNotice = "Vous êtes maintenant déconnecté."
)

type loginView struct {
	Title        string
	NoIndex      bool
	LoginPath    string
	RedirectTo   string
	Login        string
	Error        string
	Notices      []string
	ShowLocal    bool
	ShowExternal bool
	ExternalURL  string
}

// safeRedirect only follows same-site absolute paths.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return defaultLanding
	}
	return target
}

func (h HandlerSet) loginView(c *gin.Context, redirectTo string) loginView {
	mode := h.modes.Mode(c.Request.Context())
	view := loginView{
		Title:        "Connexion",
		NoIndex:      true,
		LoginPath:    h.cfg.Guard.LoginPath,
		RedirectTo:   redirectTo,
		ShowExternal: mode != authmode.ModeLocal,
		ShowLocal:    mode != authmode.ModeExternal || c.Query("backup") == "1",
	}

	if view.ShowExternal {
		view.ExternalURL = h.externalAuthorizeURL(redirectTo)
		view.ShowExternal = view.ExternalURL != ""
	}

	if c.Query("session_expired") == "1" {
		view.Notices = append(view.Notices, guard.Message(guard.ReasonSessionExpired))
	}
	if c.Query("security_check") == "1" {
		view.Notices = append(view.Notices, securityNotice)
	}
	if c.Query("loggedout") == "1" {
		view.Notices = append(view.Notices, loggedOutNotice)
	}
	if reason := c.Query("reason"); reason != "" {
		view.Notices = append(view.Notices, guard.Message(reason))
	}
	return view
}

// externalAuthorizeURL points the browser at Galette; the ID token comes
// back as a form post on the oauth callback, with the landing page in state.
func (h HandlerSet) externalAuthorizeURL(redirectTo string) string {
	gc := h.cfg.Galette
	if gc.AuthorizeURL == "" || gc.ClientID == "" {
		return ""
	}
	q := url.Values{
		"client_id":     {gc.ClientID},
		"response_type": {"id_token"},
		"response_mode": {"form_post"},
		"scope":         {"openid email profile groups"},
		"redirect_uri":  {strings.TrimRight(h.cfg.HTTP.PublicURL, "/") + h.cfg.Guard.LoginPath + "/oauth"},
		"state":         {safeRedirect(redirectTo)},
		"nonce":         {ids.New()},
	}
	return gc.AuthorizeURL + "?" + q.Encode()
}

func (h HandlerSet) LoginPage(c *gin.Context) {
	if _, ok := guard.CurrentUser(c); ok {
		c.Redirect(http.StatusFound, safeRedirect(c.Query("redirect_to")))
		return
	}
	guard.SetNoCacheHeaders(c)
	c.HTML(http.StatusOK, "login.html", h.loginView(c, c.Query("redirect_to")))
}

func (h HandlerSet) LocalLogin(c *gin.Context) {
	login := c.PostForm("login")
	redirectTo := c.PostForm("redirect_to")

	result, err := h.auth.LocalLogin(c.Request.Context(), service.LoginInput{
		Login:     login,
		Password:  c.PostForm("password"),
		Remember:  c.PostForm("remember") != "",
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.renderLoginError(c, err, login, redirectTo)
		return
	}

	h.log.Info().Int64("user_id", result.User.ID).Str("method", "local").Msg("user logged in")
	middleware.SetAuthCookie(c, h.cfg.Security, result.Cookie, result.CookieMaxAge)
	c.Redirect(http.StatusSeeOther, safeRedirect(redirectTo))
}

func (h HandlerSet) ExternalLogin(c *gin.Context) {
	redirectTo := c.PostForm("state")
	if redirectTo == "" {
		redirectTo = c.PostForm("redirect_to")
	}

	result, err := h.auth.ExternalLogin(c.Request.Context(), service.ExternalLoginInput{
		IDToken:   c.PostForm("id_token"),
		Remember:  c.PostForm("remember") != "",
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.renderLoginError(c, err, "", redirectTo)
		return
	}

	h.log.Info().Int64("user_id", result.User.ID).Str("method", "galette").Msg("user logged in")
	middleware.SetAuthCookie(c, h.cfg.Security, result.Cookie, result.CookieMaxAge)
	c.Redirect(http.StatusSeeOther, safeRedirect(redirectTo))
}

func (h HandlerSet) renderLoginError(c *gin.Context, err error, login, redirectTo string) {
	status := http.StatusUnauthorized
	message := service.ErrInvalidCredentials.Error()

	switch {
	case errors.Is(err, authmode.ErrLocalLoginDisabled):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrUserSuspended), errors.Is(err, service.ErrExternalLoginDisabled):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
	default:
		h.log.Error().Err(err).Msg("login failed")
		status, message = http.StatusInternalServerError, "Une erreur est survenue, veuillez réessayer."
	}

	view := h.loginView(c, redirectTo)
	view.Login = login
	view.Error = message
	guard.SetNoCacheHeaders(c)
	c.HTML(status, "login.html", view)
}

func (h HandlerSet) Logout(c *gin.Context) {
	if user, ok := guard.CurrentUser(c); ok {
		if err := h.auth.Logout(c.Request.Context(), user.ID); err != nil {
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("destroy member session")
		}
	}
	middleware.ClearAuthCookie(c, h.cfg.Security)
	c.Redirect(http.StatusSeeOther, h.cfg.Guard.LoginPath+"?loggedout=1")
}

type meResponse struct {
	ID          int64    `json:"id"`
	Login       string   `json:"login"`
	DisplayName string   `json:"display_name"`
	FirstName   string   `json:"first_name"`
	Roles       []string `json:"roles"`
	Collectifs  []string `json:"collectifs"`
}

func (h HandlerSet) Me(c *gin.Context) {
	user, _ := guard.CurrentUser(c)
	collectifs := user.Collectifs
	if collectifs == nil {
		collectifs = []string{}
	}
	c.JSON(http.StatusOK, meResponse{
		ID:          user.ID,
		Login:       user.Login,
		DisplayName: user.DisplayName,
		FirstName:   user.FirstName,
		Roles:       user.Roles,
		Collectifs:  collectifs,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, http.StatusBadRequest, "invalid_request", service.ErrInvalidRequest.Error())
		return
	}

	user, _ := guard.CurrentUser(c)
	err := h.auth.ChangePassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		middleware.AbortError(c, http.StatusForbidden, "incorrect_password", "Mot de passe actuel incorrect.")
		return
	case errors.Is(err, service.ErrWeakPassword):
		middleware.AbortError(c, http.StatusBadRequest, "weak_password", err.Error())
		return
	case err != nil:
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("change password")
		middleware.AbortError(c, http.StatusInternalServerError, "internal_server_error", "Erreur interne du serveur.")
		return
	}

	middleware.ClearAuthCookie(c, h.cfg.Security)
	c.JSON(http.StatusOK, gin.H{"changed": true})
}
