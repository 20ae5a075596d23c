package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks a dependency.
type Pinger func(ctx context.Context) error

// QueueStats reports the deferred action backlog.
type QueueStats interface {
	Len() int
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	db      Pinger
	queue   QueueStats
	clients func() int
	started time.Time
}

func NewHealthHandler(version string, db Pinger, queue QueueStats, clients func() int) *HealthHandler {
	return &HealthHandler{version: version, db: db, queue: queue, clients: clients, started: time.Now()}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime     string `json:"uptime"`
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
}

// Health reports "degraded" with 200 when a dependency is down.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:     time.Since(h.started).Round(time.Second).String(),
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	db := h.checkDatabase(ctx)
	resp.Services["database"] = db
	if db.Status != "healthy" {
		resp.Status = "degraded"
	}
	if h.queue != nil {
		resp.Services["automation_queue"] = ServiceInfo{Status: "healthy", Details: gin.H{"pending": h.queue.Len()}}
	}
	if h.clients != nil {
		resp.Services["websocket"] = ServiceInfo{Status: "healthy", Details: gin.H{"clients": h.clients()}}
	}
	c.JSON(http.StatusOK, resp)
}

// Ready 就绪检查端点，数据库不可用时返回 503
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	db := h.checkDatabase(ctx)
	if db.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "services": gin.H{"database": db}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "services": gin.H{"database": db}})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceInfo {
	if h.db == nil {
		return ServiceInfo{Status: "unknown"}
	}
	start := time.Now()
	if err := h.db(ctx); err != nil {
		return ServiceInfo{Status: "unhealthy", Error: err.Error(), Latency: time.Since(start).String()}
	}
	return ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
}

// RegisterHealthRoutes 注册健康检查路由
func RegisterHealthRoutes(r gin.IRouter, handler *HealthHandler) {
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
}
