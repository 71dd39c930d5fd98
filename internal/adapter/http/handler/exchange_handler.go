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

// ExchangeHandler drives the exchange lifecycle endpoints.
type ExchangeHandler struct {
	exchangeSvc ports.ExchangeService
}

// NewExchangeHandler creates a new ExchangeHandler.
func NewExchangeHandler(exchangeSvc ports.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{exchangeSvc: exchangeSvc}
}

// Create handles POST /api/v1/exchanges.
func (h *ExchangeHandler) Create(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "create_exchange", apperror.ErrInvalidCaller())
		return
	}

	var req dto.CreateExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "create_exchange", apperror.Validation(err.Error()))
		return
	}

	ex, err := h.exchangeSvc.CreateExchange(c.Request.Context(), ports.CreateExchangeRequest{
		Caller:               caller,
		DepositAmount:        req.DepositAmount,
		RegistrationDuration: req.RegistrationDuration,
		ExchangeDuration:     req.ExchangeDuration,
		AttachedValue:        req.Value,
		ReferenceID:          req.ReferenceID,
	})
	if err != nil {
		fail(c, "create_exchange", err)
		return
	}

	response.Created(c, dto.ToExchangeResponse(ex))
}

// Register handles POST /api/v1/exchanges/:id/register.
func (h *ExchangeHandler) Register(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "register", apperror.ErrInvalidCaller())
		return
	}
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "register", err)
		return
	}

	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "register", apperror.Validation(err.Error()))
		return
	}

	p, err := h.exchangeSvc.Register(c.Request.Context(), ports.RegisterRequest{
		Caller:        caller,
		ExchangeID:    id,
		AttachedValue: req.Value,
	})
	if err != nil {
		fail(c, "register", err)
		return
	}

	response.Created(c, p)
}

// Reveal handles POST /api/v1/exchanges/:id/reveal.
func (h *ExchangeHandler) Reveal(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "reveal", apperror.ErrInvalidCaller())
		return
	}
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "reveal", err)
		return
	}

	var req dto.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "reveal", apperror.Validation(err.Error()))
		return
	}

	ex, err := h.exchangeSvc.RevealAssignments(c.Request.Context(), ports.RevealRequest{
		Caller:     caller,
		ExchangeID: id,
		Root:       common.HexToHash(req.Root),
	})
	if err != nil {
		fail(c, "reveal", err)
		return
	}

	response.OK(c, dto.ToExchangeResponse(ex))
}

// SubmitGift handles POST /api/v1/exchanges/:id/gifts.
func (h *ExchangeHandler) SubmitGift(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "submit_gift", apperror.ErrInvalidCaller())
		return
	}
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "submit_gift", err)
		return
	}

	var req dto.SubmitGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "submit_gift", apperror.Validation(err.Error()))
		return
	}
	nonce, err := dto.ParseUint256(req.Nonce)
	if err != nil {
		fail(c, "submit_gift", apperror.Validation(err.Error()))
		return
	}

	p, err := h.exchangeSvc.SubmitGift(c.Request.Context(), ports.SubmitGiftRequest{
		Caller:      caller,
		ExchangeID:  id,
		ContentHash: common.HexToHash(req.ContentHash),
		Recipient:   common.HexToAddress(req.Recipient),
		Nonce:       nonce,
		Proof:       dto.ParseHashes(req.Proof),
	})
	if err != nil {
		fail(c, "submit_gift", err)
		return
	}

	response.OK(c, p)
}
