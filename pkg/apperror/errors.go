package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// ---- Exchange lifecycle (EXC) ----

func ErrExchangeNotFound() *AppError {
	return New("EXC_001", "Exchange not found", http.StatusNotFound)
}

func ErrInvalidExchangeState() *AppError {
	return New("EXC_002", "Invalid exchange state for this operation", http.StatusConflict)
}

func ErrInsufficientDeposit() *AppError {
	return New("EXC_003", "Attached value is below the required deposit", http.StatusPaymentRequired)
}

func ErrRegistrationClosed() *AppError {
	return New("EXC_004", "Registration closed: participant capacity reached", http.StatusConflict)
}

func ErrNotParticipant() *AppError {
	return New("EXC_005", "Caller is not a participant of this exchange", http.StatusForbidden)
}

func ErrAlreadyRegistered() *AppError {
	return New("EXC_006", "Caller is already registered", http.StatusConflict)
}

func ErrGiftAlreadySubmitted() *AppError {
	return New("EXC_007", "Gift already submitted", http.StatusConflict)
}

func ErrInvalidGiftProof() *AppError {
	return New("EXC_008", "Assignment proof does not verify against the exchange root", http.StatusUnprocessableEntity)
}

func ErrClaimNotAllowed() *AppError {
	return New("EXC_009", "Claim not allowed", http.StatusConflict)
}

func ErrDeadlinePassed() *AppError {
	return New("EXC_010", "Deadline has passed", http.StatusGone)
}

func ErrNotOrganizer() *AppError {
	return New("EXC_011", "Only the organizer may reveal before the registration deadline", http.StatusForbidden)
}

func ErrEmptyBatch() *AppError {
	return New("EXC_012", "Batch claim requires at least one exchange", http.StatusBadRequest)
}

func ErrZeroPayout() *AppError {
	return New("EXC_013", "Aggregate payout is zero", http.StatusConflict)
}

// ---- Vault & value movement (VLT) ----

func ErrInsufficientBalance() *AppError {
	return New("VLT_001", "Insufficient account balance", http.StatusPaymentRequired)
}

func ErrTransferFailed(err error) *AppError {
	return Wrap("VLT_002", "Outbound value transfer failed", http.StatusInternalServerError, err)
}

func ErrNoFeesToWithdraw() *AppError {
	return New("VLT_003", "No balance available to withdraw", http.StatusConflict)
}

func ErrAmountOverflow(err error) *AppError {
	return Wrap("VLT_004", "Amount exceeds the supported range", http.StatusUnprocessableEntity, err)
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidCaller() *AppError {
	return New("SEC_001", "Missing or invalid caller credentials", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

func ErrNotAdmin() *AppError {
	return New("SEC_005", "Administrator privileges required", http.StatusForbidden)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Request (REQ) ----

// Validation returns a REQ_001 validation error.
func Validation(message string) *AppError {
	return New("REQ_001", message, http.StatusBadRequest)
}

func ErrUnknownOperation() *AppError {
	return New("REQ_002", "Undefined operation", http.StatusNotFound)
}

func ErrBodyTooLarge() *AppError {
	return New("REQ_003", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
