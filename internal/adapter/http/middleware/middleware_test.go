package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/internal/core/ports/mocks"
	"gift-exchange-escrow/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCaller = common.HexToAddress("0x1000000000000000000000000000000000000001")

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ErrorCode
}

func signedRouter(sigSvc ports.SignatureService, nonceStore ports.NonceStore) *gin.Engine {
	router := gin.New()
	router.POST("/test", SignatureAuth(sigSvc, nonceStore, DefaultSignatureConfig(), zerolog.Nop()), func(c *gin.Context) {
		caller, _ := Caller(c)
		c.JSON(200, gin.H{"caller": caller.Hex()})
	})
	return router
}

func signedRequest(body string, ts int64) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(body))
	req.Header.Set(HeaderCaller, testCaller.Hex())
	req.Header.Set(HeaderSignature, "0xsig")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderNonce, "nonce-ok")
	return req
}

func TestSignatureAuth_MissingHeaders(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := signedRouter(mocks.NewMockSignatureService(ctrl), mocks.NewMockNonceStore(ctrl))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SEC_001", errorCode(t, w))
}

func TestSignatureAuth_MalformedCaller(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := signedRouter(mocks.NewMockSignatureService(ctrl), mocks.NewMockNonceStore(ctrl))

	req := signedRequest("", time.Now().Unix())
	req.Header.Set(HeaderCaller, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "SEC_001", errorCode(t, w))
}

func TestSignatureAuth_ExpiredTimestamp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := signedRouter(mocks.NewMockSignatureService(ctrl), mocks.NewMockNonceStore(ctrl))

	for _, ts := range []int64{time.Now().Add(-120 * time.Second).Unix(), time.Now().Add(120 * time.Second).Unix()} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, signedRequest("", ts))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "SEC_003", errorCode(t, w))
	}
}

func TestSignatureAuth_NonceReplay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	nonceStore := mocks.NewMockNonceStore(ctrl)
	nonceStore.EXPECT().CheckAndSet(gomock.Any(), testCaller.Hex(), "nonce-ok", 120*time.Second).Return(false, nil)

	router := signedRouter(mocks.NewMockSignatureService(ctrl), nonceStore)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest("", time.Now().Unix()))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "SEC_004", errorCode(t, w))
}

func TestSignatureAuth_WrongSigner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	nonceStore.EXPECT().CheckAndSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	sigSvc.EXPECT().BuildCanonicalString(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("canonical")
	sigSvc.EXPECT().Verify("canonical", "0xsig", testCaller).Return(false)

	router := signedRouter(sigSvc, nonceStore)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest("{}", time.Now().Unix()))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SEC_002", errorCode(t, w))
}

func TestSignatureAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)

	nowTs := time.Now().Unix()
	body := `{"value":100}`

	nonceStore.EXPECT().CheckAndSet(gomock.Any(), testCaller.Hex(), "nonce-ok", 120*time.Second).Return(true, nil)
	sigSvc.EXPECT().BuildCanonicalString("POST", "/test", nowTs, "nonce-ok", body).Return("canonical")
	sigSvc.EXPECT().Verify("canonical", "0xsig", testCaller).Return(true)

	var gotBody string
	router := gin.New()
	router.POST("/test", SignatureAuth(sigSvc, nonceStore, DefaultSignatureConfig(), zerolog.Nop()), func(c *gin.Context) {
		caller, ok := Caller(c)
		require.True(t, ok)
		assert.Equal(t, testCaller, caller)
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(c.Request.Body)
		gotBody = buf.String()
		c.JSON(200, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(body, nowTs))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, gotBody, "body must be readable again after verification")
}

func TestSignatureAuth_NonceStoreDownAllows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	nonceStore.EXPECT().CheckAndSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, assert.AnError)
	sigSvc.EXPECT().BuildCanonicalString(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("canonical")
	sigSvc.EXPECT().Verify("canonical", "0xsig", testCaller).Return(true)

	router := signedRouter(sigSvc, nonceStore)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest("", time.Now().Unix()))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("bad_token").Return(nil, assert.AnError)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_003", errorCode(t, w))
}

func TestJWTAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{Address: testCaller}, nil)

	var captured common.Address
	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		captured, _ = Caller(c)
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testCaller, captured)
}

func TestAdminOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	admin := mocks.NewMockAdminService(ctrl)
	admin.EXPECT().IsAdmin(testCaller).Return(false)

	router := gin.New()
	router.POST("/admin", func(c *gin.Context) {
		c.Set(CtxCaller, testCaller)
		c.Next()
	}, AdminOnly(admin), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	router.POST("/anon", AdminOnly(admin), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "SEC_005", errorCode(t, w))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/anon", nil))
	assert.Equal(t, "SEC_005", errorCode(t, w))
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		response.OK(c, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(HeaderRequestID))
	var resp response.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-abc", resp.RequestID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestRecovery_PanicRecovered(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_001", errorCode(t, w))
}
