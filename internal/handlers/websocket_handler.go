package handlers

import (
	"net/http"

	"boardflow/internal/notify"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler 通知推送连接
type WebSocketHandler struct {
	hub *notify.Hub
}

func NewWebSocketHandler(hub *notify.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	h.hub.HandleWebSocket(c)
}

// GetStats 返回在线连接数
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": h.hub.ClientCount()})
}

// RegisterWebSocketRoutes 注册 /ws 路由
func RegisterWebSocketRoutes(r *gin.RouterGroup, handler *WebSocketHandler) {
	r.GET("/ws", handler.HandleWebSocket)
	r.GET("/ws/stats", handler.GetStats)
}
