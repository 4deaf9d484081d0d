package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/middleware"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
)

func (h HandlerSet) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h HandlerSet) UpdateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var patch service.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		middleware.AbortError(c, http.StatusBadRequest, "invalid_request", service.ErrInvalidRequest.Error())
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h HandlerSet) UpdateChecklist(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var patch service.ChecklistPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		middleware.AbortError(c, http.StatusBadRequest, "invalid_request", service.ErrInvalidRequest.Error())
		return
	}

	task, err := h.tasks.UpdateChecklist(c.Request.Context(), id, patch)
	if err != nil {
		h.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.AbortError(c, http.StatusNotFound, "task_not_found", service.ErrTaskNotFound.Error())
		return 0, false
	}
	return id, true
}

func (h HandlerSet) taskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		middleware.AbortError(c, http.StatusNotFound, "task_not_found", err.Error())
	case errors.Is(err, service.ErrInvalidTaskStatus):
		middleware.AbortError(c, http.StatusBadRequest, "invalid_task_status", err.Error())
	case errors.Is(err, service.ErrInvalidChecklistItem):
		middleware.AbortError(c, http.StatusBadRequest, "invalid_checklist_item", err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		middleware.AbortError(c, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.internalError(c, err, "task operation")
	}
}
