package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/live-commerce/pkg/response"
)

type createLiveRequest struct {
	Title       string    `json:"title" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ProductIDs  []string  `json:"product_ids"`
}

// ListLives 直播列表
// @Summary 直播列表（直播中优先）
// @Tags 直播
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/lives [get]
func (h *Handler) ListLives(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.lives.ListLive(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// GetLive 直播详情
// @Summary 直播详情（访问数 +1）
// @Tags 直播
// @Produce json
// @Param id path string true "直播ID"
// @Success 200 {object} response.Response{data=model.LiveStream}
// @Failure 404 {object} response.Response
// @Router /api/v1/lives/{id} [get]
func (h *Handler) GetLive(c *gin.Context) {
	ls, err := h.lives.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ls)
}

// ListMessages 直播间历史消息
// @Summary 历史聊天消息
// @Tags 直播
// @Produce json
// @Param id path string true "直播ID"
// @Param limit query int false "条数"
// @Success 200 {object} response.Response{data=[]service.MessageView}
// @Router /api/v1/lives/{id}/messages [get]
func (h *Handler) ListMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.chat.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}

// CreateLive 合作方创建直播
// @Summary 创建直播
// @Tags 直播管理
// @Accept json
// @Produce json
// @Param request body createLiveRequest true "直播信息"
// @Success 201 {object} response.Response{data=model.LiveStream}
// @Router /api/v1/partner/lives [post]
func (h *Handler) CreateLive(c *gin.Context) {
	pid, ok := partnerID(c)
	if !ok {
		return
	}
	var req createLiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ls, err := h.lives.Create(c.Request.Context(), pid, req.Title, req.ScheduledAt, req.ProductIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ls)
}

// StartLive 开播
// @Summary 开播
// @Tags 直播管理
// @Produce json
// @Param id path string true "直播ID"
// @Success 200 {object} response.Response{data=model.LiveStream}
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/partner/lives/{id}/start [post]
func (h *Handler) StartLive(c *gin.Context) {
	pid, ok := partnerID(c)
	if !ok {
		return
	}
	ls, err := h.lives.Start(c.Request.Context(), c.Param("id"), pid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ls)
}

// EndLive 结束直播
// @Summary 结束直播
// @Tags 直播管理
// @Produce json
// @Param id path string true "直播ID"
// @Success 200 {object} response.Response{data=model.LiveStream}
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/partner/lives/{id}/end [post]
func (h *Handler) EndLive(c *gin.Context) {
	pid, ok := partnerID(c)
	if !ok {
		return
	}
	ls, err := h.lives.End(c.Request.Context(), c.Param("id"), pid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ls)
}
