package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cat-engine/internal/service"
)

type SessionHandler struct {
	Service *service.SessionService
}

func NewSessionHandler(s *service.SessionService) *SessionHandler {
	return &SessionHandler{Service: s}
}

func examineeID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.Service.Start(c.Request.Context(), examineeID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.Service.Get(c.Request.Context(), c.Param("id"), examineeID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) NextItem(c *gin.Context) {
	next, err := h.Service.Next(c.Request.Context(), c.Param("id"), examineeID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, next)
}

func (h *SessionHandler) SubmitResponse(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feedback, err := h.Service.SubmitAnswer(c.Request.Context(), c.Param("id"), examineeID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feedback)
}

func (h *SessionHandler) CancelSession(c *gin.Context) {
	sess, err := h.Service.Cancel(c.Request.Context(), c.Param("id"), examineeID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) GetResults(c *gin.Context) {
	results, err := h.Service.Results(c.Request.Context(), c.Param("id"), examineeID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *SessionHandler) GetProgress(c *gin.Context) {
	progress, err := h.Service.Progress(c.Request.Context(), c.Param("id"), examineeID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}
