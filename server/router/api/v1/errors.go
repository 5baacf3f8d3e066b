package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/geominder/location"
	"github.com/hrygo/geominder/store"
)

// toHTTPError maps engine and store errors to HTTP errors. The original error
// is kept as the internal cause for logging.
func toHTTPError(err error) *echo.HTTPError {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateName), errors.Is(err, store.ErrSavedPlaceLimit):
		status = http.StatusConflict
	default:
		switch location.CodeOf(err) {
		case location.CodeInvalidInput:
			status = http.StatusBadRequest
		case location.CodeNotFound, location.CodeResolutionFailed:
			status = http.StatusUnprocessableEntity
		case location.CodeCeilingExceeded:
			status = http.StatusConflict
		case location.CodeNetworkError, location.CodeServiceUnavailable:
			status = http.StatusServiceUnavailable
		case location.CodeRegistrationFailed:
			status = http.StatusBadGateway
		}
	}
	return echo.NewHTTPError(status, errorBody(err)).SetInternal(err)
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(err error) ErrorResponse {
	code := string(location.CodeOf(err))
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = string(location.CodeNotFound)
	case errors.Is(err, store.ErrDuplicateName), errors.Is(err, store.ErrSavedPlaceLimit):
		code = string(location.CodeInvalidInput)
	}
	return ErrorResponse{Code: code, Message: err.Error()}
}

func badRequest(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{
		Code:    string(location.CodeInvalidInput),
		Message: message,
	})
}

func parseID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id: " + c.Param("id"))
	}
	return int32(id), nil
}
