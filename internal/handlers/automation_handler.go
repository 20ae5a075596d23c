package handlers

import (
	"net/http"

	"boardflow/internal/services"

	"github.com/gin-gonic/gin"
)

// AutomationHandler 自动化规则构建器接口
type AutomationHandler struct {
	rules   *services.RuleService
	catalog *services.CatalogService
}

func NewAutomationHandler(rules *services.RuleService, catalog *services.CatalogService) *AutomationHandler {
	return &AutomationHandler{rules: rules, catalog: catalog}
}

// Catalog 返回可用的触发器与动作
func (h *AutomationHandler) Catalog(c *gin.Context) {
	cat, err := h.catalog.Catalog(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to load catalog", err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// ListRules 获取看板规则列表
func (h *AutomationHandler) ListRules(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	rules, err := h.rules.List(c.Request.Context(), boardID)
	if err != nil {
		respondError(c, "Failed to list rules", err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *AutomationHandler) GetRule(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rule, err := h.rules.Get(c.Request.Context(), boardID, id)
	if err != nil {
		respondError(c, "Failed to get rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule 创建规则
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), boardID, &req)
	if err != nil {
		respondError(c, "Failed to create rule", err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), boardID, id, &req)
	if err != nil {
		respondError(c, "Failed to update rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ToggleRule 启用/停用规则
func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rule, err := h.rules.Toggle(c.Request.Context(), boardID, id)
	if err != nil {
		respondError(c, "Failed to toggle rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则及其执行记录
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), boardID, id); err != nil {
		respondError(c, "Failed to delete rule", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ListLogs 分页查询执行记录
func (h *AutomationHandler) ListLogs(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	var q services.AutomationLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query", Message: err.Error()})
		return
	}
	logs, total, err := h.rules.ListLogs(c.Request.Context(), boardID, q)
	if err != nil {
		respondError(c, "Failed to list logs", err)
		return
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     logs,
		Total:    total,
		Page:     page,
		PageSize: size,
		Pages:    pages(total, size),
	})
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	r.GET("/automation/catalog", handler.Catalog)

	auto := r.Group("/boards/:board_id/automations")
	{
		auto.GET("", handler.ListRules)
		auto.POST("", handler.CreateRule)
		auto.GET("/logs", handler.ListLogs)
		auto.GET("/:id", handler.GetRule)
		auto.PUT("/:id", handler.UpdateRule)
		auto.DELETE("/:id", handler.DeleteRule)
		auto.PATCH("/:id/toggle", handler.ToggleRule)
	}
}
