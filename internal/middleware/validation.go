package middleware

import (
	"mime"
	"net/http"

	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

var acceptedBodyTypes = map[string]bool{
	"application/json":    true,
	"multipart/form-data": true,
}

// RequestValidationMiddleware rejects request bodies the API cannot parse: bodies larger
// than maxBody bytes and POST/PUT/PATCH bodies that are neither JSON nor multipart
func RequestValidationMiddleware(maxBody int64, logger *observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	return func(c *gin.Context) {
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "request_validation",
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.Request.URL.Path),
		)
		defer span.End()

		if maxBody > 0 && c.Request.ContentLength > maxBody {
			logger.Warn(ctx, "Request body too large", map[string]interface{}{
				"path":           c.Request.URL.Path,
				"content_length": c.Request.ContentLength,
				"max_body":       maxBody,
			})
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, contextutils.NewAppError(
				contextutils.ErrorCodeValidationFailed,
				contextutils.SeverityWarn,
				"Request body too large",
				"",
			).ToJSON())
			return
		}
		if maxBody > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength == 0 {
				break
			}
			mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
			if err != nil || !acceptedBodyTypes[mediaType] {
				span.SetAttributes(attribute.String("validation.result", "unsupported_media_type"))
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, contextutils.NewAppError(
					contextutils.ErrorCodeInvalidFormat,
					contextutils.SeverityWarn,
					"Unsupported content type",
					"expected application/json or multipart/form-data",
				).ToJSON())
				return
			}
		}

		c.Next()
	}
}
