package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request ID on both requests and responses. Clients
// (the school frontend, curl during support sessions) may supply their own.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware tags every request with an ID and echoes it on the response,
// generating a UUID when the caller did not send one.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the current request's ID, or "" outside the middleware.
func Value(c *gin.Context) string {
	id, _ := c.Value(contextKey).(string)
	return id
}
