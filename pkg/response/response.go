package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the JSON envelope the marketing site's form expects.
type Body struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OK sends a 200 JSON response with a user-facing message and optional data.
func OK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Message: message, Data: data})
}

// Error sends a failure envelope with the given status.
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Body{Success: false, Message: message})
}

// BadRequest sends 400.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// MethodNotAllowed sends 405 with the Allow header set.
func MethodNotAllowed(c *gin.Context, allow, message string) {
	c.Header("Allow", allow)
	Error(c, http.StatusMethodNotAllowed, message)
}

// TooManyRequests sends 429.
func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, message)
}

// Internal sends 500.
func Internal(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
