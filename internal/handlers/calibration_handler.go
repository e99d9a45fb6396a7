package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cat-engine/internal/models"
	"cat-engine/internal/service"
)

type CalibrationHandler struct {
	Service *service.CalibrationService
}

func NewCalibrationHandler(s *service.CalibrationService) *CalibrationHandler {
	return &CalibrationHandler{Service: s}
}

type createRunRequest struct {
	Scope        models.RunScope `json:"scope"`
	Method       string          `json:"method"`
	MinResponses int             `json:"min_responses"`
}

func (h *CalibrationHandler) CreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := h.Service.CreateRun(c.Request.Context(), req.Scope, req.Method, req.MinResponses)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (h *CalibrationHandler) GetRun(c *gin.Context) {
	run, err := h.Service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *CalibrationHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	runs, err := h.Service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *CalibrationHandler) PromoteCalibration(c *gin.Context) {
	cal, err := h.Service.Promote(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cal)
}

func (h *CalibrationHandler) GetItemHistory(c *gin.Context) {
	version, err := strconv.Atoi(c.DefaultQuery("version", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}
	history, err := h.Service.History(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
