package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/middleware"
	appErrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/response"
)

const (
	flashStatus = "status"
	flashErrors = "errors"
	flashEmail  = "old.email"
)

// ViewPayload is what page endpoints return in place of rendered HTML.
type ViewPayload struct {
	View   string            `json:"view"`
	Status string            `json:"status,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
	Old    map[string]string `json:"old,omitempty"`
	Data   any               `json:"data,omitempty"`
}

// ResultPayload answers a JSON client after a successful form action.
type ResultPayload struct {
	Status   string `json:"status,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// fail answers err. Browsers posting a form with field errors are sent back
// with the errors flashed; everything else gets the JSON error envelope.
func fail(c *gin.Context, back string, err error) {
	appErr := appErrors.FromError(err)
	fields := appErr.FieldErrors()
	if middleware.ExpectsJSON(c) || len(fields) == 0 || back == "" {
		response.Error(c, appErr)
		return
	}

	sess, ok := middleware.CurrentSession(c)
	if !ok {
		response.Error(c, appErr)
		return
	}
	if encoded, err := json.Marshal(fields); err == nil {
		sess.Flash(flashErrors, string(encoded))
	}
	if email := c.PostForm("email"); email != "" {
		sess.Flash(flashEmail, email)
	}
	if appErr.RetryAfter > 0 {
		c.Header("Retry-After", retryAfterSeconds(appErr))
	}
	response.Redirect(c, back)
}

// succeed finishes a form action by redirecting browsers to location with
// status flashed, or by answering JSON clients with both in the body.
func succeed(c *gin.Context, location, status string) {
	if middleware.ExpectsJSON(c) {
		response.Success(c, http.StatusOK, ResultPayload{Status: status, Redirect: location})
		return
	}
	if status != "" {
		if sess, ok := middleware.CurrentSession(c); ok {
			sess.Flash(flashStatus, status)
		}
	}
	response.Redirect(c, location)
}

// view answers a page request with the view name and any flashed feedback.
func view(c *gin.Context, name string, data any) {
	payload := ViewPayload{View: name, Data: data}
	if sess, ok := middleware.CurrentSession(c); ok {
		payload.Status, _ = sess.Flashed(flashStatus)
		if raw, ok := sess.Flashed(flashErrors); ok {
			_ = json.Unmarshal([]byte(raw), &payload.Errors)
		}
		if email, ok := sess.Flashed(flashEmail); ok {
			payload.Old = map[string]string{"email": email}
		}
	}
	response.Success(c, http.StatusOK, payload)
}

// render answers a flow outcome. back is where a status outcome returns
// browsers to.
func render(c *gin.Context, outcome auth.Outcome, back string) {
	switch outcome.Kind {
	case auth.OutcomeView:
		view(c, outcome.View, nil)
	case auth.OutcomeStatus:
		succeed(c, back, outcome.Status)
	default:
		succeed(c, outcome.Location, "")
	}
}

func retryAfterSeconds(err *appErrors.AppError) string {
	seconds := int(err.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
