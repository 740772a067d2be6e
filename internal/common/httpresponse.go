package common

import "github.com/gin-gonic/gin"

// JSON writes a JSON response with the given status code, shared by the
// auth middleware and the ops API handlers so error bodies look the same
// regardless of which layer rejected the request.
func JSON(c *gin.Context, status int, body gin.H) {
	c.JSON(status, body)
}
