package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/middleware"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
)

func (h HandlerSet) CacheVersion(c *gin.Context) {
	v, err := h.settings.CacheVersion(c.Request.Context())
	if err != nil {
		h.internalError(c, err, "read cache version")
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

func (h HandlerSet) BumpCacheVersion(c *gin.Context) {
	v, err := h.settings.BumpCacheVersion(c.Request.Context())
	if err != nil {
		h.internalError(c, err, "bump cache version")
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

func (h HandlerSet) GetAuthSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.AuthSettings(c.Request.Context()))
}

func (h HandlerSet) UpdateAuthSettings(c *gin.Context) {
	var req service.AuthSettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortError(c, http.StatusBadRequest, "invalid_request", service.ErrInvalidRequest.Error())
		return
	}

	settings, err := h.settings.UpdateAuthSettings(c.Request.Context(), req)
	if err != nil {
		h.internalError(c, err, "update auth settings")
		return
	}

	user, _ := guard.CurrentUser(c)
	h.log.Info().
		Int64("user_id", user.ID).
		Str("mode", string(settings.Mode)).
		Int("session_days", settings.SessionDays).
		Msg("auth settings updated")
	c.JSON(http.StatusOK, settings)
}
