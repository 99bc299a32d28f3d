package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicapp/internal/config"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAdminService struct {
	isAdmin    bool
	err        error
	calls      int
	lastUserID string
}

func (m *mockAdminService) IsAdmin(_ context.Context, userID string) (bool, error) {
	m.calls++
	m.lastUserID = userID
	return m.isAdmin, m.err
}

func newTestVerifier() *TokenVerifier {
	return NewTokenVerifier(config.AuthConfig{JWTSecret: "test-secret", Issuer: "civic-test"})
}

func newTestRouter(verifier *TokenVerifier, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	chain := append([]gin.HandlerFunc{RequireAuth(verifier)}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":     c.GetString(UserIDKey),
			"name":        c.GetString(UserNameKey),
			"is_admin":    c.GetBool(IsAdminKey),
			"ctx_user_id": contextutils.GetUserIDFromContext(c.Request.Context()),
			"ctx_admin":   contextutils.IsAdminFromContext(c.Request.Context()),
		})
	})
	router.GET("/protected", chain...)
	return router
}

func doRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTokenVerifier_IssueAndVerify(t *testing.T) {
	verifier := newTestVerifier()

	token, err := verifier.Issue("user-1", "Asha", "admin", time.Hour)
	require.NoError(t, err)

	identity, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "Asha", identity.Name)
	assert.True(t, identity.IsAdmin)

	citizen, err := verifier.Issue("user-2", "Ravi", "citizen", time.Hour)
	require.NoError(t, err)
	identity, err = verifier.Verify(citizen)
	require.NoError(t, err)
	assert.False(t, identity.IsAdmin)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	verifier := newTestVerifier()

	expired, err := verifier.Issue("user-1", "", "", -time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewTokenVerifier(config.AuthConfig{JWTSecret: "test-secret", Issuer: "someone-else"}).
		Issue("user-1", "", "", time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewTokenVerifier(config.AuthConfig{JWTSecret: "other", Issuer: "civic-test"}).
		Issue("user-1", "", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "civic-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
		Issuer:  "civic-test",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong issuer", token: otherIssuer},
		{name: "wrong secret", token: otherSecret},
		{name: "missing subject", token: noSubject},
		{name: "missing expiry", token: noExpiry},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, contextutils.IsError(err, contextutils.ErrUnauthorized))
		})
	}
}

func TestTokenVerifier_NotConfigured(t *testing.T) {
	verifier := NewTokenVerifier(config.AuthConfig{})

	_, err := verifier.Verify("anything")
	assert.True(t, contextutils.IsError(err, contextutils.ErrServiceUnavailable))

	_, err = verifier.Issue("user-1", "", "", time.Hour)
	assert.True(t, contextutils.IsError(err, contextutils.ErrMissingRequired))
}

func TestRequireAuth(t *testing.T) {
	verifier := newTestVerifier()
	router := newTestRouter(verifier)
	token, err := verifier.Issue("user-1", "Asha", "citizen", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "no header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + token, status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.header)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user_id":"user-1"`)
				assert.Contains(t, w.Body.String(), `"ctx_user_id":"user-1"`)
				assert.Contains(t, w.Body.String(), `"name":"Asha"`)
			} else {
				assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	verifier := newTestVerifier()
	adminToken, err := verifier.Issue("admin-1", "", "admin", time.Hour)
	require.NoError(t, err)
	userToken, err := verifier.Issue("user-1", "", "citizen", time.Hour)
	require.NoError(t, err)

	t.Run("admin role skips lookup", func(t *testing.T) {
		checker := &mockAdminService{}
		w := doRequest(newTestRouter(verifier, RequireAdmin(checker)), "Bearer "+adminToken)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, checker.calls)
		assert.Contains(t, w.Body.String(), `"ctx_admin":true`)
	})

	t.Run("stored admin flag", func(t *testing.T) {
		checker := &mockAdminService{isAdmin: true}
		w := doRequest(newTestRouter(verifier, RequireAdmin(checker)), "Bearer "+userToken)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", checker.lastUserID)
		assert.Contains(t, w.Body.String(), `"is_admin":true`)
	})

	t.Run("not admin", func(t *testing.T) {
		checker := &mockAdminService{}
		w := doRequest(newTestRouter(verifier, RequireAdmin(checker)), "Bearer "+userToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "FORBIDDEN")
	})

	t.Run("lookup failure", func(t *testing.T) {
		checker := &mockAdminService{err: errors.New("db down")}
		w := doRequest(newTestRouter(verifier, RequireAdmin(checker)), "Bearer "+userToken)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("without authentication", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.GET("/admin", RequireAdmin(&mockAdminService{isAdmin: true}), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
