package handler

import (
	"gift-exchange-escrow/internal/adapter/http/dto"
	"gift-exchange-escrow/internal/adapter/http/middleware"
	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// QueryHandler serves the read-only views.
type QueryHandler struct {
	querySvc ports.QueryService
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(querySvc ports.QueryService) *QueryHandler {
	return &QueryHandler{querySvc: querySvc}
}

// GetExchange handles GET /api/v1/exchanges/:id.
func (h *QueryHandler) GetExchange(c *gin.Context) {
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "get_exchange", err)
		return
	}

	ex, err := h.querySvc.GetExchange(c.Request.Context(), id)
	if err != nil {
		fail(c, "get_exchange", err)
		return
	}

	response.OK(c, dto.ToExchangeResponse(ex))
}

// ListParticipants handles GET /api/v1/exchanges/:id/participants.
func (h *QueryHandler) ListParticipants(c *gin.Context) {
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "list_participants", err)
		return
	}

	participants, err := h.querySvc.ListParticipants(c.Request.Context(), id)
	if err != nil {
		fail(c, "list_participants", err)
		return
	}
	if participants == nil {
		participants = []domain.Participant{}
	}

	response.OK(c, participants)
}

// GetParticipant handles GET /api/v1/exchanges/:id/participants/:address.
func (h *QueryHandler) GetParticipant(c *gin.Context) {
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "get_participant", err)
		return
	}
	addr, err := addressParam(c)
	if err != nil {
		fail(c, "get_participant", err)
		return
	}

	p, err := h.querySvc.GetParticipant(c.Request.Context(), id, addr)
	if err != nil {
		fail(c, "get_participant", err)
		return
	}

	response.OK(c, p)
}

// ListEvents handles GET /api/v1/exchanges/:id/events.
func (h *QueryHandler) ListEvents(c *gin.Context) {
	id, err := exchangeID(c)
	if err != nil {
		fail(c, "list_events", err)
		return
	}

	events, err := h.querySvc.ListEvents(c.Request.Context(), id)
	if err != nil {
		fail(c, "list_events", err)
		return
	}
	if events == nil {
		events = []domain.ExchangeEvent{}
	}

	response.OK(c, events)
}

// IdentityHistory handles GET /api/v1/identities/:address/exchanges.
func (h *QueryHandler) IdentityHistory(c *gin.Context) {
	addr, err := addressParam(c)
	if err != nil {
		fail(c, "identity_history", err)
		return
	}
	h.history(c, addr)
}

// MyExchanges handles GET /api/v1/me/exchanges.
func (h *QueryHandler) MyExchanges(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "identity_history", apperror.ErrInvalidToken())
		return
	}
	h.history(c, caller)
}

func (h *QueryHandler) history(c *gin.Context, addr common.Address) {
	ids, err := h.querySvc.ExchangesFor(c.Request.Context(), addr)
	if err != nil {
		fail(c, "identity_history", err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}

	response.OK(c, dto.HistoryResponse{Address: addr, ExchangeIDs: ids})
}

// Stats handles GET /api/v1/stats.
func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.querySvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, "stats", err)
		return
	}

	response.OK(c, stats)
}

// MyAccount handles GET /api/v1/me/account.
func (h *QueryHandler) MyAccount(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		fail(c, "account", apperror.ErrInvalidToken())
		return
	}

	acct, err := h.querySvc.Account(c.Request.Context(), caller)
	if err != nil {
		fail(c, "account", err)
		return
	}

	response.OK(c, dto.BalanceResponse{Address: acct.Address, Balance: acct.Balance})
}
