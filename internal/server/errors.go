package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/learnboard/internal/authorization"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"github.com/smallbiznis/learnboard/internal/ratelimit"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate_limited")
)

// errorRule maps any of its sentinels to one HTTP status and error type.
type errorRule struct {
	status  int
	typ     string
	message string
	match   []error
}

var errorRules = []errorRule{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{
		ErrUnauthorized, authorization.ErrInvalidActor,
	}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{
		ErrForbidden, authorization.ErrForbidden,
	}},
	{http.StatusNotFound, "not_found", "not found", []error{
		statsdomain.ErrScopeNotFound,
		membershipdomain.ErrEmployeeNotFound,
		membershipdomain.ErrTeamNotFound,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{
		ErrRateLimited,
	}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{
		statsdomain.ErrEventLogUnavailable, statsdomain.ErrScopeBusy,
	}},
}

// validationSentinels become 400s whose code is the sentinel text.
var validationSentinels = []error{
	learningdomain.ErrInvalidEmployee,
	learningdomain.ErrInvalidActivityType,
	learningdomain.ErrInvalidDuration,
	learningdomain.ErrInvalidDate,
	learningdomain.ErrFutureDate,
	learningdomain.ErrInvalidTags,
	learningdomain.ErrInvalidTitle,
	learningdomain.ErrInvalidPageToken,
	statsdomain.ErrInvalidScope,
	statsdomain.ErrInvalidWindow,
}

var internalErrorPayload = errorPayload{Type: "internal_error", Message: "internal server error"}

// ErrorHandlingMiddleware renders the last handler error as a JSON envelope
// unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Written() {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			status, payload := mapError(lastErr.Err)
			c.AbortWithStatusJSON(status, errorResponse{Error: payload})
		}
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalErrorPayload
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErr.Errors}
	}
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			code := sentinel.Error()
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{{Field: validationField(code), Code: code, Message: validationMessage(code)}},
			}
		}
	}

	for _, rule := range errorRules {
		for _, target := range rule.match {
			if errors.Is(err, target) {
				return rule.status, errorPayload{Type: rule.typ, Message: rule.message}
			}
		}
	}
	return http.StatusInternalServerError, internalErrorPayload
}

// classifyErrorForLog returns the error type and code logged with a request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status == http.StatusBadRequest && len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	switch {
	case errors.Is(err, ratelimit.ErrNotConfigured),
		errors.Is(err, ratelimit.ErrInvalidResponse):
		return payload.Type, "rate_limiter"
	case errors.Is(err, statsdomain.ErrScopeBusy):
		return payload.Type, "scope_busy"
	case errors.Is(err, gorm.ErrRecordNotFound):
		return payload.Type, "record_not_found"
	}
	return payload.Type, payload.Type
}

func validationField(code string) string {
	switch code {
	case learningdomain.ErrFutureDate.Error():
		return "occurred_on"
	case statsdomain.ErrInvalidWindow.Error():
		return "window_days"
	case learningdomain.ErrInvalidPageToken.Error():
		return "page_token"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationMessage(code string) string {
	switch code {
	case learningdomain.ErrFutureDate.Error():
		return "occurred_on must not be in the future"
	case statsdomain.ErrInvalidWindow.Error():
		return "window_days is out of range"
	default:
		return "invalid value"
	}
}
