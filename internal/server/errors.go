package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/iaaps/internal/assistant"
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	indicatordomain "github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/smallbiznis/iaaps/internal/indicator/loader"
	"github.com/smallbiznis/iaaps/internal/report"
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
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrInternal           = errors.New("internal_error")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
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
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "request",
					Code:    err.Error(),
					Message: "invalid value",
				},
			},
		}
	case isNoDataError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "no_data_available",
			Message: "no data available",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isDatasetError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_dataset",
			Message: err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the (error_type, error_code) pair logged for
// a failed request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if err != nil {
		code = err.Error()
	}
	if len(code) > 64 {
		code = code[:64]
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, assistant.ErrEmptyQuery),
		errors.Is(err, assistant.ErrQueryTooLong),
		errors.Is(err, report.ErrUnsupportedFormat):
		return true
	default:
		return false
	}
}

func isNoDataError(err error) bool {
	return errors.Is(err, dashboarddomain.ErrNoData) ||
		errors.Is(err, indicatordomain.ErrEmptyDataset)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, dashboarddomain.ErrIndicatorNotFound),
		errors.Is(err, dashboarddomain.ErrCenterNotFound):
		return true
	default:
		return false
	}
}

// isDatasetError reports load or validation failures of the source data.
func isDatasetError(err error) bool {
	switch {
	case errors.Is(err, loader.ErrMissingColumns),
		errors.Is(err, loader.ErrSheetNotFound),
		errors.Is(err, indicatordomain.ErrInvalidCode),
		errors.Is(err, indicatordomain.ErrInvalidKind),
		errors.Is(err, indicatordomain.ErrDuplicateCode),
		errors.Is(err, indicatordomain.ErrReservedCode),
		errors.Is(err, indicatordomain.ErrUnknownParent):
		return true
	default:
		return false
	}
}
