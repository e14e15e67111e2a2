package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// RequestIDKey is the gin context key for the correlation id.
const RequestIDKey = "requestID"

// maxRequestIDLength bounds client supplied ids.
const maxRequestIDLength = 128

// RequestID propagates the inbound X-Request-Id or assigns a new one. The id
// is stored on the gin and request contexts and echoed on the response.
func RequestID() gin.HandlerFunc {
	return RequestIDWithGenerator(uuid.NewString)
}

// RequestIDWithGenerator is RequestID with a custom id source.
func RequestIDWithGenerator(generate func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(util.HeaderRequestID)
		if !validRequestID(requestID) {
			requestID = generate()
		}

		c.Set(RequestIDKey, requestID)
		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(c.Request.Context(), requestID))
		c.Header(util.HeaderRequestID, requestID)

		c.Next()
	}
}

// validRequestID accepts printable ASCII up to maxRequestIDLength.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the correlation id of the request.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
