package handlers

import (
	"net/http"

	"boardflow/internal/services"

	"github.com/gin-gonic/gin"
)

// ItemHandler exposes the item writes that drive automations.
type ItemHandler struct {
	items   *services.ItemService
	updates *services.UpdateService
}

func NewItemHandler(items *services.ItemService, updates *services.UpdateService) *ItemHandler {
	return &ItemHandler{items: items, updates: updates}
}

// CreateItem 在分组中新建条目
func (h *ItemHandler) CreateItem(c *gin.Context) {
	groupID, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	var req services.ItemCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	item, err := h.items.CreateItem(c.Request.Context(), groupID, &req)
	if err != nil {
		respondError(c, "Failed to create item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateItem 部分更新条目（名称、字段值、分组）
func (h *ItemHandler) UpdateItem(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.ItemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	item, err := h.items.UpdateItem(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, "Failed to update item", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *ItemHandler) ListUpdates(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.items.LoadItem(c.Request.Context(), id); err != nil {
		respondError(c, "Failed to list updates", err)
		return
	}
	updates, err := h.updates.ListUpdates(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to list updates", err)
		return
	}
	c.JSON(http.StatusOK, updates)
}

// RegisterItemRoutes 注册条目路由
func RegisterItemRoutes(r *gin.RouterGroup, handler *ItemHandler) {
	r.POST("/groups/:group_id/items", handler.CreateItem)
	r.PATCH("/items/:id", handler.UpdateItem)
	r.GET("/items/:id/updates", handler.ListUpdates)
}
