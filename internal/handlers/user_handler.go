package handlers

import (
	"net/http"

	"civicapp/internal/middleware"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler serves the caller's own identity
type UserHandler struct {
	userService services.UserServiceInterface
	logger      *observability.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService services.UserServiceInterface, logger *observability.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

// Me handles GET /v1/me
func (h *UserHandler) Me(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "me")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	response := gin.H{
		"user_id":  userID,
		"name":     c.GetString(middleware.UserNameKey),
		"is_admin": IsCurrentUserAdmin(c),
	}

	// The directory entry is optional: identities may exist before a profile does
	user, err := h.userService.GetUserByID(ctx, userID)
	switch {
	case err == nil:
		response["name"] = user.Name
		response["email"] = user.Email
		response["is_admin"] = user.IsAdmin || IsCurrentUserAdmin(c)
	case contextutils.IsError(err, contextutils.ErrRecordNotFound):
	default:
		h.logger.Warn(ctx, "Failed to load user profile", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}

	c.JSON(http.StatusOK, response)
}
