package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

type pageView struct {
	Title   string
	NoIndex bool
	Content template.HTML
	User    *models.User
}

func (h HandlerSet) Page(c *gin.Context) {
	v, ok := c.Get(guard.PageKey)
	if !ok {
		c.HTML(http.StatusNotFound, "not_found.html", pageView{Title: "Page introuvable", NoIndex: true})
		return
	}
	page := v.(models.Page)

	view := pageView{
		Title:   page.Title,
		NoIndex: h.guard.IsProtectedPage(page),
		Content: template.HTML(guard.RenderShortcodes(page.Content, h.guard.ViewerFor(c), h.cfg.Guard.LoginPath)),
	}
	if user, ok := guard.CurrentUser(c); ok {
		view.User = &user
	}
	c.HTML(http.StatusOK, "page.html", view)
}
