package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that logs successful write operations.
// Actions are resolved from the matched route pattern.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath())
		if action == "" {
			return
		}

		var actor *common.Address
		if caller, ok := Caller(c); ok {
			actor = &caller
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        actor,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(route string) (domain.AuditAction, string) {
	switch route {
	case "/api/v1/auth/login":
		return domain.AuditActionLogin, "session"
	case "/api/v1/exchanges":
		return domain.AuditActionCreateExchange, "exchange"
	case "/api/v1/exchanges/:id/register":
		return domain.AuditActionRegister, "exchange"
	case "/api/v1/exchanges/:id/reveal":
		return domain.AuditActionReveal, "exchange"
	case "/api/v1/exchanges/:id/gifts":
		return domain.AuditActionSubmitGift, "exchange"
	case "/api/v1/exchanges/:id/claim":
		return domain.AuditActionClaim, "exchange"
	case "/api/v1/claims/batch":
		return domain.AuditActionBatchClaim, "exchange"
	case "/api/v1/vault/receive":
		return domain.AuditActionReceive, "vault"
	case "/api/v1/admin/fees/withdraw":
		return domain.AuditActionWithdrawFees, "vault"
	case "/api/v1/admin/exchanges/:id/pause":
		return domain.AuditActionEmergencyPause, "exchange"
	case "/api/v1/admin/accounts/credit":
		return domain.AuditActionCreditAccount, "account"
	}
	return "", ""
}
