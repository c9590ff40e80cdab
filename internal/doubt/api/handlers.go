package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"doubtdesk/internal/doubt/service"
	"doubtdesk/internal/llm"
	"doubtdesk/internal/models"
	"doubtdesk/pkg/logger"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker func() error

// Handler bundles the HTTP endpoints of the doubt service.
type Handler struct {
	service *service.Service
	health  map[string]HealthChecker
	log     *logger.Logger
}

// NewHandler creates a Handler. The health map keys become component names in
// the health report.
func NewHandler(s *service.Service, health map[string]HealthChecker, log *logger.Logger) *Handler {
	return &Handler{service: s, health: health, log: log}
}

// AskRequest is a doubt submission from an authenticated learner.
type AskRequest struct {
	Query        string               `json:"query" binding:"required"`
	CourseID     string               `json:"courseId" binding:"required"`
	ContentID    string               `json:"contentId"`
	SelectedText string               `json:"selectedText"`
	Context      string               `json:"context"`
	VisualRegion *models.VisualRegion `json:"visualContext"`
	Language     string               `json:"language"`
	APIKey       string               `json:"userApiKey"` // Optional per-user provider key
}

// AnonymousAskRequest is a doubt submission from the stateless guest path.
type AnonymousAskRequest struct {
	Query           string `json:"query" binding:"required"`
	GuestID         string `json:"guestId" binding:"required"`
	InstitutionCode string `json:"institutionCode"`
	MediaURL        string `json:"mediaUrl"`
	MediaType       string `json:"mediaType"`
}

// AnswerRequest is an instructor's human answer.
type AnswerRequest struct {
	Answer       string `json:"answer" binding:"required"`
	SaveToMemory bool   `json:"saveToMemory"`
}

// Ask handles a doubt from an authenticated learner.
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	res, err := h.service.Ask(c.Request.Context(), &service.AskInput{
		UserID:       c.GetString(ctxUserID),
		CourseID:     req.CourseID,
		ContentID:    req.ContentID,
		Query:        req.Query,
		SelectedText: req.SelectedText,
		ContextText:  req.Context,
		VisualRegion: req.VisualRegion,
		Language:     req.Language,
		UserAPIKey:   req.APIKey,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, askResponse(res))
}

// AskAnonymous handles a quota-limited doubt from an unauthenticated guest.
func (h *Handler) AskAnonymous(c *gin.Context) {
	var req AnonymousAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	res, err := h.service.AskAnonymous(c.Request.Context(), &service.AnonymousInput{
		Query:           req.Query,
		GuestID:         req.GuestID,
		InstitutionCode: req.InstitutionCode,
		MediaURL:        req.MediaURL,
		MediaType:       req.MediaType,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, askResponse(res))
}

// Get returns a single doubt by ID.
func (h *Handler) Get(c *gin.Context) {
	doubt, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "doubt": doubt})
}

// List returns doubts filtered by course and/or user, newest first.
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	doubts, err := h.service.List(c.Request.Context(), c.Query("courseId"), c.Query("userId"), page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "doubts": doubts, "page": page, "limit": limit})
}

// Escalate pushes a doubt to the instructor queue.
func (h *Handler) Escalate(c *gin.Context) {
	doubt, err := h.service.Escalate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "doubt": doubt})
}

// Answer records an instructor's answer for a doubt.
func (h *Handler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	doubt, err := h.service.AnswerHuman(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID), req.Answer, req.SaveToMemory)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "doubt": doubt})
}

// Cancel aborts an in-flight or pending doubt.
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PurgeContent removes every doubt attached to a deleted content item.
func (h *Handler) PurgeContent(c *gin.Context) {
	if err := h.service.PurgeContent(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Healthz reports the reachability of every backing store.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	components := gin.H{}
	for name, check := range h.health {
		if err := check(); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			components[name] = "ok"
		}
	}
	c.JSON(status, gin.H{"success": status == http.StatusOK, "components": components})
}

func askResponse(res *service.AskResult) gin.H {
	return gin.H{
		"success":     true,
		"doubt":       res.Doubt,
		"isFromCache": res.FromCache,
		"isSaved":     res.Saved,
		"source":      res.Source,
		"confidence":  res.Confidence,
	}
}

// writeError maps service and provider errors to HTTP responses. Provider
// credential and quota failures surface as 401 with a machine-readable code;
// everything else in the taxonomy gets a conventional status.
func (h *Handler) writeError(c *gin.Context, err error) {
	if code := llm.ErrorCode(err); code != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "errorCode": code, "message": err.Error()})
		return
	}

	switch {
	case errors.Is(err, service.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": service.QuotaMessage})
	case errors.Is(err, service.ErrDoubtNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
	default:
		h.log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
	}
}
