package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/internal/logging"
	"github.com/fyrsmithlabs/escrowd/internal/task"
)

// kindStatus maps task error kinds to HTTP statuses.
var kindStatus = map[string]int{
	"TaskNotFound":                   http.StatusNotFound,
	"Unauthorized":                   http.StatusForbidden,
	"InvalidRewardDistribution":      http.StatusUnprocessableEntity,
	"RewardDistributionNotSubmitted": http.StatusConflict,
	"NotEligible":                    http.StatusForbidden,
	"RewardAlreadyClaimed":           http.StatusConflict,
	"AllocationAlreadySubmitted":     http.StatusConflict,
	"InvalidTaskName":                http.StatusBadRequest,
	"TaskAlreadyExists":              http.StatusConflict,
	"MissingCaller":                  http.StatusUnauthorized,
	"AlreadyInitialized":             http.StatusConflict,
	"NotInitialized":                 http.StatusNotFound,
	"InsufficientFunds":              http.StatusPaymentRequired,
	"BalanceOverflow":                http.StatusUnprocessableEntity,
	"InvalidAccount":                 http.StatusBadRequest,
	"Canceled":                       http.StatusRequestTimeout,
	"DeadlineExceeded":               http.StatusRequestTimeout,
}

// errInvalidRequest marks malformed request bodies and parameters.
var errInvalidRequest = errors.New("invalid request")

func invalidRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorResponse converts err to a status and body. Internal errors are not
// echoed back to the client.
func errorResponse(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ErrorResponse{
			Code:    codeForStatus(he.Code),
			Message: fmt.Sprint(he.Message),
		}
	}

	if errors.Is(err, errInvalidRequest) {
		return http.StatusBadRequest, ErrorResponse{Code: "InvalidRequest", Message: err.Error()}
	}

	kind := task.ErrorKind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, ErrorResponse{Code: kind, Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: "Internal", Message: "internal error"}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "InvalidRequest"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusRequestEntityTooLarge:
		return "RequestTooLarge"
	case http.StatusTooManyRequests:
		return "RateLimited"
	case http.StatusForbidden:
		return "Forbidden"
	default:
		if status >= http.StatusInternalServerError {
			return "Internal"
		}
		return "Error"
	}
}

// handleError is the echo HTTPErrorHandler.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", append(logging.ContextFields(c.Request().Context()), zap.Error(err))...)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Warn("failed to write error response", zap.Error(err))
	}
}
