package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Simlowker/solduel-gaming-platform/types"
)

// Timeout creates a middleware that adds timeout to requests
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, types.ErrorResponse{
				StatusCode: http.StatusRequestTimeout,
				IsSuccess:  false,
				Error: types.ErrorDetail{
					Timestamp:    time.Now().Format(time.RFC3339),
					Path:         c.Request.URL.Path,
					ErrorMessage: "Request timeout",
				},
			})
		}
	}
}
