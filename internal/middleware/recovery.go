package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("error", r).
					Str("path", c.Request.URL.Path).
					Str("request_id", c.GetString(RequestIDKey)).
					Msg("panic recovered")
				AbortError(c, http.StatusInternalServerError, "internal_server_error", "Erreur interne du serveur.")
			}
		}()
		c.Next()
	}
}
