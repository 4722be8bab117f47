package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tagflow/internal/dispatch"
	"tagflow/internal/session"
)

const statusQueued = "queued"

func (h *handler) enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		badRequest(c, "path is required")
		return
	}
	kind, err := dispatch.ParseKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	handle, err := h.deps.Dispatcher.Dispatch(c.Request.Context(), dispatch.Request{
		Folder:    session.Folder{Hash: strings.TrimSpace(req.Hash), Path: strings.TrimSpace(req.Path)},
		Kind:      kind,
		ExtraMeta: req.ExtraMeta,
		Kwargs:    dispatch.Kwargs(req.Kwargs),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, QueuedResponse{
		JobID:  handle.ID(),
		JobIDs: handle.IDs(),
		Kind:   string(handle.Kind),
		Status: statusQueued,
	})
}

func (h *handler) analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "item_ids must be a list of integers")
		return
	}
	if len(req.ItemIDs) == 0 {
		badRequest(c, "item_ids must be a list of integers")
		return
	}

	job, err := h.deps.Dispatcher.EnqueueAnalyze(c.Request.Context(), req.ItemIDs,
		boolOr(req.AnalyzeBPM, true), boolOr(req.AnalyzeKey, true), req.ExtraMeta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, QueuedResponse{JobID: job.ID, Status: statusQueued})
}

func (h *handler) deleteItems(c *gin.Context) {
	var req DeleteItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "task_ids must be a list of strings")
		return
	}
	if len(req.TaskIDs) == 0 {
		badRequest(c, "task_ids must be a non-empty list")
		return
	}

	job, err := h.deps.Dispatcher.EnqueueDeleteItems(c.Request.Context(), req.TaskIDs, boolOr(req.DeleteFiles, true))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, QueuedResponse{JobID: job.ID, Status: statusQueued})
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
