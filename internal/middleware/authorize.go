package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
)

// RequireUser rejects anonymous REST calls.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := guard.CurrentUser(c); !ok {
			AbortError(c, http.StatusUnauthorized, "rest_forbidden", "Vous devez être connecté.")
			return
		}
		c.Next()
	}
}

// RequireCapability rejects REST calls from users lacking cap: 401 when
// anonymous, 403 otherwise.
func RequireCapability(checker guard.Checker, cap capability.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := guard.CurrentUser(c)
		if !ok {
			AbortError(c, http.StatusUnauthorized, "rest_forbidden", "Vous devez être connecté.")
			return
		}
		if !checker.UserCan(c.Request.Context(), user, cap) {
			AbortError(c, http.StatusForbidden, "rest_forbidden", "Vous n'avez pas les permissions nécessaires.")
			return
		}
		c.Next()
	}
}
