package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
)

func SetAuthCookie(c *gin.Context, cfg config.SecurityConfig, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.CookieName, value, int(ttl.Seconds()), "/", cfg.CookieDomain, cfg.CookieSecure, true)
}

func ClearAuthCookie(c *gin.Context, cfg config.SecurityConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.CookieName, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, true)
}
