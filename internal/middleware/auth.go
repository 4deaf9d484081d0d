package middleware

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/metrics"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/session"
)

// Session resolves the host cookie and runs the member session check. A
// valid session attaches the user; an expired or hijacked one is destroyed
// and page requests are sent back to the login form with a flag.
// Asynchronous requests just continue unauthenticated.
func Session(auth *service.AuthService, g *guard.Guard, cfg config.SecurityConfig, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(cfg.CookieName)
		if err != nil || cookie == "" {
			c.Next()
			return
		}

		res, err := auth.Authenticate(c.Request.Context(), cookie, c.ClientIP(), c.GetHeader("User-Agent"))
		if err != nil {
			if errors.Is(err, service.ErrNotAuthenticated) {
				ClearAuthCookie(c, cfg)
			} else {
				log.Error().Err(err).Msg("resolve session")
			}
			c.Next()
			return
		}

		var flag string
		switch res.Outcome {
		case session.Valid, session.Missing:
			c.Set(guard.CurrentUserKey, res.User)
			c.Next()
			return
		case session.Expired:
			flag = "session_expired"
		case session.Hijacked:
			flag = "security_check"
		case session.Foreign:
			log.Debug().Int64("user_id", res.User.ID).Msg("member session superseded")
		}

		metrics.SessionInvalidatedTotal.WithLabelValues(res.Outcome.String()).Inc()
		ClearAuthCookie(c, cfg)

		if flag != "" && !guard.IsAsync(c.Request) {
			c.Redirect(http.StatusFound, g.LoginURL(c.Request.URL.RequestURI(), url.Values{flag: {"1"}}))
			c.Abort()
			return
		}
		c.Next()
	}
}
