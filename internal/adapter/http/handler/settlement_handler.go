package handler

import (
	"gift-exchange-escrow/internal/adapter/http/dto"
	"gift-exchange-escrow/internal/adapter/http/middleware"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/response"

	"github.com/gin-gonic/gin"
)

// SettlementHandler pays out gift rewards.
type SettlementHandler struct {
	settlementSvc ports.SettlementService
	ledgerSvc     ports.LedgerService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc ports.SettlementService, ledgerSvc ports.LedgerService) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, ledgerSvc: ledgerSvc}
}

// Claim handles POST /api/v1/exchanges/:id/claim.
func (h *SettlementHandler) Claim(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "claim", apperror.ErrInvalidCaller())
		return
	}
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "claim", err)
		return
	}

	result, err := h.settlementSvc.Claim(c.Request.Context(), caller, id)
	if err != nil {
		fail(c, "claim", err)
		return
	}

	response.OK(c, result)
}

// BatchClaim handles POST /api/v1/claims/batch.
func (h *SettlementHandler) BatchClaim(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "batch_claim", apperror.ErrInvalidCaller())
		return
	}

	var req dto.BatchClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "batch_claim", apperror.Validation(err.Error()))
		return
	}

	result, err := h.settlementSvc.BatchClaim(c.Request.Context(), caller, req.ExchangeIDs)
	if err != nil {
		fail(c, "batch_claim", err)
		return
	}

	response.OK(c, result)
}

// Receive handles POST /api/v1/vault/receive. The value is retained without
// being attributed to any exchange.
func (h *SettlementHandler) Receive(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "receive", apperror.ErrInvalidCaller())
		return
	}

	var req dto.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "receive", apperror.Validation(err.Error()))
		return
	}

	if err := h.ledgerSvc.Receive(c.Request.Context(), caller, req.Value); err != nil {
		fail(c, "receive", err)
		return
	}

	response.OK(c, dto.AmountResponse{Amount: req.Value})
}
