package handlers

import (
	"net/http"

	"boardflow/internal/services"

	"github.com/gin-gonic/gin"
)

// BoardHandler 看板结构（列）接口
type BoardHandler struct {
	boards *services.BoardService
}

func NewBoardHandler(boards *services.BoardService) *BoardHandler {
	return &BoardHandler{boards: boards}
}

func (h *BoardHandler) AddColumn(c *gin.Context) {
	boardID, ok := paramID(c, "board_id")
	if !ok {
		return
	}
	var req services.ColumnCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	column, err := h.boards.AddColumn(c.Request.Context(), boardID, &req)
	if err != nil {
		respondError(c, "Failed to add column", err)
		return
	}
	c.JSON(http.StatusCreated, column)
}

func RegisterBoardRoutes(r *gin.RouterGroup, handler *BoardHandler) {
	r.POST("/boards/:board_id/columns", handler.AddColumn)
}
