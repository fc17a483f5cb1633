package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/live-commerce/internal/api/middleware"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/pkg/response"
)

type settlementRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	BankAccount   string `json:"bank_account" binding:"required,max=64"`
	AccountHolder string `json:"account_holder" binding:"required,max=64"`
}

type resolveRequest struct {
	Status       model.SettlementStatus `json:"status" binding:"required"`
	RejectReason string                 `json:"reject_reason"`
}

func partnerID(c *gin.Context) (string, bool) {
	claims := middleware.CurrentClaims(c)
	if claims == nil || claims.PartnerID == "" {
		response.Forbidden(c, "partner account required")
		return "", false
	}
	return claims.PartnerID, true
}

// RequestSettlement 合作方申请结算
// @Summary 申请结算
// @Tags 结算
// @Accept json
// @Produce json
// @Param request body settlementRequest true "结算信息"
// @Success 201 {object} response.Response{data=model.Settlement}
// @Failure 400 {object} response.Response "参数错误或可结算金额不足（data.available_amount）"
// @Router /api/v1/partner/settlements [post]
func (h *Handler) RequestSettlement(c *gin.Context) {
	pid, ok := partnerID(c)
	if !ok {
		return
	}
	var req settlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	st, err := h.settlements.RequestSettlement(c.Request.Context(), pid, req.Amount, req.BankAccount, req.AccountHolder)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, st)
}

// ListMySettlements 合作方结算记录
// @Summary 我的结算记录
// @Tags 结算
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/partner/settlements [get]
func (h *Handler) ListMySettlements(c *gin.Context) {
	pid, ok := partnerID(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)
	list, total, err := h.settlements.ListByPartner(c.Request.Context(), pid, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "total": total, "list": list})
}

// AvailableAmount 可结算金额
// @Summary 可结算金额
// @Tags 结算
// @Produce json
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/partner/settlements/available [get]
func (h *Handler) AvailableAmount(c *gin.Context) {
	pid, ok := partnerID(c)
	if !ok {
		return
	}
	avail, err := h.settlements.Available(c.Request.Context(), pid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"available_amount": avail})
}

// ListSettlements 管理员查询结算单
// @Summary 结算单列表
// @Tags 结算管理
// @Produce json
// @Param status query string false "状态" Enums(PENDING, APPROVED, REJECTED)
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/admin/settlements [get]
func (h *Handler) ListSettlements(c *gin.Context) {
	page, pageSize := pageParams(c)
	status := model.SettlementStatus(c.Query("status"))
	list, total, err := h.settlements.List(c.Request.Context(), status, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "total": total, "list": list})
}

// GetSettlement 结算单详情
// @Summary 结算单详情
// @Tags 结算管理
// @Produce json
// @Param id path string true "结算单ID"
// @Success 200 {object} response.Response{data=model.Settlement}
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/settlements/{id} [get]
func (h *Handler) GetSettlement(c *gin.Context) {
	st, err := h.settlements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// ResolveSettlement 审核结算单
// @Summary 审核结算（通过/驳回）
// @Tags 结算管理
// @Accept json
// @Produce json
// @Param id path string true "结算单ID"
// @Param request body resolveRequest true "审核结果"
// @Success 200 {object} response.Response{data=model.Settlement}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response "结算单不是待审核状态"
// @Router /api/v1/admin/settlements/{id} [patch]
func (h *Handler) ResolveSettlement(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	st, err := h.settlements.ResolveSettlement(c.Request.Context(), c.Param("id"), req.Status, req.RejectReason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}
