package handler

import (
	"gift-exchange-escrow/internal/adapter/http/dto"
	"gift-exchange-escrow/internal/adapter/http/middleware"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the administrator-only endpoints. Routes are guarded by
// middleware.AdminOnly; the service checks the caller again.
type AdminHandler struct {
	adminSvc ports.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminSvc ports.AdminService) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc}
}

// WithdrawFees handles POST /api/v1/admin/fees/withdraw.
func (h *AdminHandler) WithdrawFees(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "withdraw_fees", apperror.ErrInvalidCaller())
		return
	}

	amount, err := h.adminSvc.WithdrawPlatformFees(c.Request.Context(), caller)
	if err != nil {
		fail(c, "withdraw_fees", err)
		return
	}

	response.OK(c, dto.AmountResponse{Amount: amount})
}

// Pause handles POST /api/v1/admin/exchanges/:id/pause.
func (h *AdminHandler) Pause(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "emergency_pause", apperror.ErrInvalidCaller())
		return
	}
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "emergency_pause", err)
		return
	}

	ex, err := h.adminSvc.EmergencyPause(c.Request.Context(), caller, id)
	if err != nil {
		fail(c, "emergency_pause", err)
		return
	}

	response.OK(c, dto.ToExchangeResponse(ex))
}

// CreditAccount handles POST /api/v1/admin/accounts/credit.
func (h *AdminHandler) CreditAccount(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "credit_account", apperror.ErrInvalidCaller())
		return
	}

	var req dto.CreditAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "credit_account", apperror.Validation(err.Error()))
		return
	}

	account := common.HexToAddress(req.Address)
	balance, err := h.adminSvc.CreditAccount(c.Request.Context(), caller, account, req.Amount)
	if err != nil {
		fail(c, "credit_account", err)
		return
	}

	response.OK(c, dto.BalanceResponse{Address: account, Balance: balance})
}
