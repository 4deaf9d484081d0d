package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/middleware"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
)

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

func (h HandlerSet) ListMembers(c *gin.Context) {
	members, err := h.members.List(c.Request.Context(), service.MemberQuery{
		Collectif: c.Query("collectif"),
		Page:      queryInt(c, "page"),
		PerPage:   queryInt(c, "per_page"),
	})
	if err != nil {
		h.internalError(c, err, "list members")
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h HandlerSet) CountMembers(c *gin.Context) {
	count, err := h.members.Count(c.Request.Context(), c.Query("collectif"))
	if err != nil {
		h.internalError(c, err, "count members")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h HandlerSet) internalError(c *gin.Context, err error, msg string) {
	h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	middleware.AbortError(c, http.StatusInternalServerError, "internal_server_error", "Erreur interne du serveur.")
}
