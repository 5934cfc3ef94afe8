package apihandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"pollster/internal/banner"
	"pollster/internal/models"
	"pollster/internal/polling"
	"pollster/internal/store"
)

const maxWait = 60 * time.Second

type APIHandler struct {
	Engine  *polling.Engine
	Banner  *banner.Banner
	History store.JobStore // nil when history is disabled
}

func NewAPIHandler(engine *polling.Engine, b *banner.Banner, history store.JobStore) *APIHandler {
	return &APIHandler{Engine: engine, Banner: b, History: history}
}

func (h *APIHandler) ListKindsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.Engine.Registry().List()})
}

// StartJobHandler starts a job of the kind named in the path. The request body
// is forwarded as the job payload; ?slot= reuses a slot.
func (h *APIHandler) StartJobHandler(c *gin.Context) {
	kind := c.Param("kind")
	raw, err := c.GetRawData()
	if err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	var payload any
	if len(raw) > 0 {
		if !json.Valid(raw) {
			BadRequest(c, "Request body must be valid JSON")
			return
		}
		payload = json.RawMessage(raw)
	}

	var opts []polling.StartOption
	if slot := c.Query("slot"); slot != "" {
		opts = append(opts, polling.WithSlot(slot))
	}

	slot, err := h.Engine.StartJob(c.Request.Context(), kind, payload, opts...)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnknownKind):
			NotFound(c, err.Error())
		case errors.Is(err, models.ErrTokenReused), errors.Is(err, models.ErrConflict):
			Conflict(c, err.Error())
		default:
			log.Warnf("StartJobHandler: %s job failed to start: %v", kind, err)
			JSONError(c, http.StatusBadGateway, "start_failed", err.Error())
		}
		return
	}

	st, _ := h.Engine.State(slot)
	c.JSON(http.StatusAccepted, gin.H{"data": st})
}

func (h *APIHandler) ListJobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.Engine.States()})
}

// GetJobHandler returns the state of a slot. With ?wait=<duration> it blocks
// until the job is terminal or the duration elapses.
func (h *APIHandler) GetJobHandler(c *gin.Context) {
	slot := c.Param("slot")
	wait, err := parseWait(c.Query("wait"))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	var st polling.JobState
	if wait > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		defer cancel()
		st, err = h.Engine.Wait(ctx, slot)
		if errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		st, err = h.Engine.State(slot)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			NotFound(c, fmt.Sprintf("No job in slot %s", slot))
			return
		}
		Internal(c, fmt.Sprintf("GetJobHandler: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *APIHandler) CancelJobHandler(c *gin.Context) {
	slot := c.Param("slot")
	if err := h.Engine.Cancel(slot); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			NotFound(c, fmt.Sprintf("No job in slot %s", slot))
		case errors.Is(err, models.ErrConflict):
			Conflict(c, err.Error())
		default:
			Internal(c, fmt.Sprintf("CancelJobHandler: %v", err))
		}
		return
	}
	st, _ := h.Engine.State(slot)
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *APIHandler) ListHistoryHandler(c *gin.Context) {
	if h.History == nil {
		JSONError(c, http.StatusServiceUnavailable, "history_disabled", "Job history is disabled")
		return
	}
	limit, offset, err := parsePagination(c)
	if err != nil {
		BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	jobs, err := h.History.ListJobs(c.Request.Context(), c.Query("slot"), limit, offset)
	if err != nil {
		Internal(c, fmt.Sprintf("ListHistoryHandler: failed to list jobs: %v", err))
		return
	}
	if jobs == nil {
		jobs = []*models.JobRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

func (h *APIHandler) GetBannerHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.Banner.Get()})
}

func (h *APIHandler) DismissBannerHandler(c *gin.Context) {
	h.Banner.Dismiss()
	c.JSON(http.StatusOK, gin.H{"data": h.Banner.Get()})
}

func parsePagination(c *gin.Context) (limit, offset int, err error) {
	limit = 20
	if l := c.Query("limit"); l != "" {
		parsed, convErr := strconv.Atoi(l)
		if convErr != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("invalid limit: %s", l)
		}
		limit = parsed
	}
	if o := c.Query("offset"); o != "" {
		parsed, convErr := strconv.Atoi(o)
		if convErr != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("invalid offset: %s", o)
		}
		offset = parsed
	}
	return limit, offset, nil
}

func parseWait(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid wait: %s", s)
	}
	if d > maxWait {
		d = maxWait
	}
	return d, nil
}
