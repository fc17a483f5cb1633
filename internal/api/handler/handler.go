package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/live-commerce/internal/realtime"
	"github.com/d60-Lab/live-commerce/internal/service"
)

// SocketOptions websocket 连接参数
type SocketOptions struct {
	RateLimit    float64
	RateBurst    int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	MaxFrameSize int64
	SendBuffer   int
	AllowOrigins []string
}

// Handler 汇总 HTTP 与 websocket 处理函数
type Handler struct {
	settlements service.SettlementService
	lives       service.LiveStreamService
	chat        service.ChatService
	registry    *realtime.Registry
	socket      SocketOptions
	validate    *validator.Validate
}

func NewHandler(
	settlements service.SettlementService,
	lives service.LiveStreamService,
	chat service.ChatService,
	registry *realtime.Registry,
	socket SocketOptions,
) *Handler {
	if socket.ReadTimeout <= 0 {
		socket.ReadTimeout = 60 * time.Second
	}
	if socket.WriteTimeout <= 0 {
		socket.WriteTimeout = 5 * time.Second
	}
	if socket.MaxFrameSize <= 0 {
		socket.MaxFrameSize = 1 << 16
	}
	if socket.RateLimit <= 0 {
		socket.RateLimit = 2
	}
	if socket.RateBurst <= 0 {
		socket.RateBurst = 5
	}
	return &Handler{
		settlements: settlements,
		lives:       lives,
		chat:        chat,
		registry:    registry,
		socket:      socket,
		validate:    validator.New(),
	}
}

// Health 存活检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": h.registry.Rooms()})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}
