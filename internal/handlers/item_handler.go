package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cat-engine/internal/models"
	"cat-engine/internal/service"
)

type ItemHandler struct {
	Service *service.ItemService
}

func NewItemHandler(s *service.ItemService) *ItemHandler {
	return &ItemHandler{Service: s}
}

func (h *ItemHandler) CreateItem(c *gin.Context) {
	var item models.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.Service.Create(c.Request.Context(), &item)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *ItemHandler) GetItem(c *gin.Context) {
	item, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) ListItems(c *gin.Context) {
	publishedOnly := c.Query("published") != "false"
	items, err := h.Service.List(c.Request.Context(), c.Query("topic_id"), publishedOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetPoolInfo reports the eligible pool distribution for ad-hoc constraints
// given as query parameters.
func (h *ItemHandler) GetPoolInfo(c *gin.Context) {
	constraints := models.Constraints{}
	if topics := c.Query("topic_ids"); topics != "" {
		constraints.TopicIDs = strings.Split(topics, ",")
	}
	if labels := c.Query("difficulty_labels"); labels != "" {
		constraints.DifficultyLabels = strings.Split(labels, ",")
	}
	targetCount, _ := strconv.Atoi(c.DefaultQuery("target_count", "20"))

	info, err := h.Service.PoolInfo(c.Request.Context(), constraints, targetCount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
