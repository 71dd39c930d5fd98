package handler

import (
	"errors"
	"strconv"

	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/metrics"
	"gift-exchange-escrow/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// fail counts the rejected operation and writes the error envelope.
func fail(c *gin.Context, op string, err error) {
	code := "SYS_000"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	metrics.Escrow().ObserveFailure(op, code)
	response.Error(c, err)
}

// exchangeID parses the :id path parameter.
func exchangeID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("exchange id must be a positive integer")
	}
	return id, nil
}

// addressParam parses the :address path parameter.
func addressParam(c *gin.Context) (common.Address, error) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperror.Validation("address must be a 20-byte hex address")
	}
	return common.HexToAddress(raw), nil
}
