// Package middleware provides authentication and authorization middleware for the Gin web framework.
package middleware

import (
	"context"
	"strings"
	"time"

	"civicapp/internal/config"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Gin context keys for the authenticated caller
const (
	// UserIDKey is the key used to store the caller's user ID
	UserIDKey = "user_id"
	// UserNameKey is the key used to store the caller's display name
	UserNameKey = "user_name"
	// IsAdminKey is the key used to store the administrator capability flag
	IsAdminKey = "is_admin"
)

// Identity is the caller extracted from a verified bearer token
type Identity struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens issued by the identity provider
type TokenVerifier struct {
	secret    []byte
	issuer    string
	adminRole string
}

// NewTokenVerifier creates a verifier from the auth configuration
func NewTokenVerifier(cfg config.AuthConfig) *TokenVerifier {
	adminRole := cfg.AdminRole
	if adminRole == "" {
		adminRole = config.DefaultAdminRole
	}
	return &TokenVerifier{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.Issuer,
		adminRole: adminRole,
	}
}

// Verify parses and validates a raw token and returns the caller identity
func (v *TokenVerifier) Verify(raw string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrServiceUnavailable, "token verification is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeUnauthorized, contextutils.SeverityWarn,
			"Invalid or expired token", "", err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeUnauthorized, contextutils.SeverityWarn,
			"Invalid or expired token", "token has no subject")
	}

	return &Identity{
		UserID:  claims.Subject,
		Name:    claims.Name,
		Role:    claims.Role,
		IsAdmin: claims.Role == v.adminRole,
	}, nil
}

// Issue signs a token for userID. It is used by the admin CLI and tests;
// production tokens come from the identity provider.
func (v *TokenVerifier) Issue(userID, name, role string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", contextutils.WrapError(contextutils.ErrMissingRequired, "auth.jwt_secret is not configured")
	}

	now := time.Now()
	claims := tokenClaims{
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to sign token")
	}
	return signed, nil
}

// RequireAuth returns a middleware that requires a valid bearer token
func RequireAuth(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		scheme, raw, found := strings.Cut(authHeader, " ")
		if authHeader == "" || !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeUnauthorized, contextutils.SeverityWarn,
				"Authentication required", "missing bearer token"))
			c.Abort()
			return
		}

		identity, err := verifier.Verify(strings.TrimSpace(raw))
		if err != nil {
			HandleAppError(c, err)
			c.Abort()
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// AdminChecker is the minimal capability needed to look up the stored admin flag
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin returns a middleware that requires the administrator capability.
// It must run after RequireAuth. A token carrying the admin role is accepted
// directly; otherwise the stored user flag decides.
func RequireAdmin(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(UserIDKey)
		if userID == "" {
			HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeUnauthorized, contextutils.SeverityWarn,
				"Authentication required", ""))
			c.Abort()
			return
		}

		if c.GetBool(IsAdminKey) {
			c.Next()
			return
		}

		isAdmin, err := checker.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			HandleAppError(c, contextutils.WrapError(err, "failed to check admin status"))
			c.Abort()
			return
		}

		if !isAdmin {
			HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeForbidden, contextutils.SeverityWarn,
				"Admin access required", ""))
			c.Abort()
			return
		}

		c.Set(IsAdminKey, true)
		c.Request = c.Request.WithContext(contextutils.WithIsAdmin(c.Request.Context(), true))
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity *Identity) {
	c.Set(UserIDKey, identity.UserID)
	c.Set(UserNameKey, identity.Name)
	c.Set(IsAdminKey, identity.IsAdmin)

	ctx := contextutils.WithUserID(c.Request.Context(), identity.UserID)
	ctx = contextutils.WithIsAdmin(ctx, identity.IsAdmin)
	c.Request = c.Request.WithContext(ctx)
}
