package apperror

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// genericMessage is the only text clients see for unexpected failures outside development.
const genericMessage = "an unexpected error occurred"

// Response is the JSON envelope written for every error.
type Response struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

// HTTPErrorHandler converts errors returned by handlers and middleware into
// {message} responses. AppErrors keep their status, echo.HTTPErrors keep
// theirs, everything else is a 500 whose detail is only exposed when dev is true.
func HTTPErrorHandler(logger zerolog.Logger, dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err, dev)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func render(err error, dev bool) (int, Response) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, Response{Message: "request timed out", Code: "TIMEOUT"}
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			return appErr.HTTPStatus, internalResponse(appErr, dev)
		}
		return appErr.HTTPStatus, Response{Message: appErr.Message, Code: appErr.Code, Details: appErr.Details}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok && m != "" {
			msg = m
		}
		if httpErr.Code >= http.StatusInternalServerError {
			return httpErr.Code, internalResponse(err, dev)
		}
		return httpErr.Code, Response{Message: msg}
	}

	return http.StatusInternalServerError, internalResponse(err, dev)
}

func internalResponse(err error, dev bool) Response {
	resp := Response{Message: genericMessage, Code: "INTERNAL_ERROR"}
	if dev {
		resp.Detail = err.Error()
	}
	return resp
}
