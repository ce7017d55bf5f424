package response

import (
	"net/http"
	"strconv"
	"time"

	appErrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// Error writes a JSON error response derived from an AppError. Field-bound errors
// are additionally keyed under "errors" so form clients can attach them to inputs.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(appErr.RetryAfter/time.Second)))
	}

	info := &ErrorInfo{
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	info.Errors = appErr.FieldErrors()

	c.JSON(status, Response{
		Success: false,
		Error:   info,
	})
}

// Redirect issues a 302 to the supplied location.
func Redirect(c *gin.Context, location string) {
	if location == "" {
		location = "/"
	}
	c.Redirect(http.StatusFound, location)
}
