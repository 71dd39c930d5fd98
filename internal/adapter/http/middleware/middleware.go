package middleware

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for signed requests
	HeaderCaller    = "X-Caller-Address"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxCaller = "caller"
)

// SignatureConfig bounds replay protection for signed requests.
type SignatureConfig struct {
	MaxDrift time.Duration // accepted |now - X-Timestamp|
	NonceTTL time.Duration // how long a used nonce is remembered
}

// DefaultSignatureConfig returns a 60s drift window and 120s nonce memory.
func DefaultSignatureConfig() SignatureConfig {
	return SignatureConfig{MaxDrift: 60 * time.Second, NonceTTL: 120 * time.Second}
}

// SignatureAuth verifies that the request was signed by X-Caller-Address.
// Pipeline: Check timestamp -> Check nonce -> Recover signer.
func SignatureAuth(
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	cfg SignatureConfig,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerHex := c.GetHeader(HeaderCaller)
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)

		if callerHex == "" || signature == "" || timestampStr == "" || nonce == "" || !common.IsHexAddress(callerHex) {
			response.Error(c, apperror.ErrInvalidCaller())
			c.Abort()
			return
		}
		caller := common.HexToAddress(callerHex)

		// Step 1: Timestamp check
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			response.Error(c, apperror.ErrTimestampExpired())
			c.Abort()
			return
		}
		now := time.Now().Unix()
		if math.Abs(float64(now-timestamp)) > cfg.MaxDrift.Seconds() {
			response.Error(c, apperror.ErrTimestampExpired())
			c.Abort()
			return
		}

		// Step 2: Nonce check
		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), caller.Hex(), nonce, cfg.NonceTTL)
		if err != nil {
			log.Warn().Err(err).Msg("nonce store error, allowing request")
		} else if !isNew {
			response.Error(c, apperror.ErrNonceUsed())
			c.Abort()
			return
		}

		// Step 3: Signature recovery
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if IsBodyTooLarge(err) {
			response.Error(c, apperror.ErrBodyTooLarge())
			c.Abort()
			return
		}
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		canonical := sigSvc.BuildCanonicalString(
			c.Request.Method,
			c.Request.URL.Path,
			timestamp,
			nonce,
			string(bodyBytes),
		)

		if !sigSvc.Verify(canonical, signature, caller) {
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		c.Set(CtxCaller, caller)
		c.Next()
	}
}

// JWTAuth creates a middleware that validates session tokens for /me routes.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		tokenStr := authHeader[7:]
		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxCaller, claims.Address)
		c.Next()
	}
}

// AdminOnly rejects callers other than the configured administrator.
// It must run after SignatureAuth.
func AdminOnly(admin ports.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := Caller(c)
		if !ok || !admin.IsAdmin(caller) {
			response.Error(c, apperror.ErrNotAdmin())
			c.Abort()
			return
		}
		c.Next()
	}
}

// Caller returns the authenticated identity set by SignatureAuth or JWTAuth.
func Caller(c *gin.Context) (common.Address, bool) {
	v, exists := c.Get(CtxCaller)
	if !exists {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

// RequestID propagates X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(response.CtxRequestID))
		if caller, ok := Caller(c); ok {
			event = event.Str("caller", caller.Hex())
		}
		event.Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(fmt.Errorf("panic: %v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}
