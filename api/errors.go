package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
)

// Cookie names of the session scheme. SESSION_ID and USER_ID travel together;
// CSRF_TOKEN mirrors the header copy of the double-submit token, and
// DEVICE_COOKIE marks a device that has logged in successfully before.
const (
	cookieSession = "SESSION_ID"
	cookieUserID  = "USER_ID"
	cookieCSRF    = "CSRF_TOKEN"
	cookieDevice  = "DEVICE_COOKIE"

	headerCSRFToken = "X-CSRF-TOKEN"
)

// HTTPErrorHandler renders every error as the standard envelope
// {code, message, params}. Typed API errors pass through with their status;
// anything else is logged and reported as an internal error without leaking
// detail to the client.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr, ok := apierr.As(err)
	if !ok {
		if httpErr, isHTTP := err.(*echo.HTTPError); isHTTP {
			apiErr = translateEchoError(httpErr)
		} else {
			common.Logger.WithError(err).
				WithField("path", c.Request().URL.Path).
				Error("unhandled request error")
			apiErr = apierr.ErrInternal
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		common.Logger.WithError(err).Error("writing error response")
	}
}

// translateEchoError maps router- and middleware-raised errors onto the
// envelope codes.
func translateEchoError(httpErr *echo.HTTPError) *apierr.Error {
	switch httpErr.Code {
	case http.StatusNotFound:
		return apierr.New(http.StatusNotFound, "E_ROUTE_NOT_FOUND", "route not found")
	case http.StatusMethodNotAllowed:
		return apierr.New(http.StatusMethodNotAllowed, "E_METHOD_NOT_ALLOWED", "method not allowed")
	case http.StatusRequestEntityTooLarge:
		return apierr.ErrFileTooLarge
	case http.StatusTooManyRequests:
		return apierr.New(http.StatusTooManyRequests, "E_TOO_MANY_REQUESTS", "too many requests")
	case http.StatusBadRequest:
		return apierr.New(http.StatusBadRequest, "E_BAD_REQUEST", "malformed request")
	}
	return apierr.New(httpErr.Code, apierr.ErrInternal.Code, http.StatusText(httpErr.Code))
}
