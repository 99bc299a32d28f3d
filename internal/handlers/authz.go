package handlers

import (
	"civicapp/internal/middleware"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetCurrentUserID returns the authenticated caller's ID set by RequireAuth.
// It returns an Unauthorized AppError when the request carries no identity.
func GetCurrentUserID(c *gin.Context) (string, error) {
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		return userID, nil
	}
	if userID := contextutils.GetUserIDFromContext(c.Request.Context()); userID != "" {
		return userID, nil
	}
	return "", contextutils.NewAppError(contextutils.ErrorCodeUnauthorized, contextutils.SeverityWarn,
		"Authentication required", "")
}

// IsCurrentUserAdmin reports whether the caller holds the administrator capability
func IsCurrentUserAdmin(c *gin.Context) bool {
	return c.GetBool(middleware.IsAdminKey) || contextutils.IsAdminFromContext(c.Request.Context())
}
