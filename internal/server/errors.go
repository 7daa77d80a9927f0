package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/mascot/config"
	"github.com/mohammad-safakhou/mascot/internal/assistant"
	"github.com/mohammad-safakhou/mascot/internal/turn"
)

// httpError maps a failure to the status the widget expects. The original
// error stays attached as Internal for logging.
func httpError(err error) *echo.HTTPError {
	var (
		he       *echo.HTTPError
		cfgErr   *config.ConfigurationError
		runErr   *turn.RunFailedError
		remote   *assistant.RemoteServiceError
		protoErr *assistant.ProtocolError
	)
	code, msg := http.StatusInternalServerError, err.Error()
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &cfgErr):
		msg = cfgErr.Error()
	case errors.Is(err, turn.ErrRequiresAction):
		code = http.StatusNotImplemented
		msg = turn.ErrRequiresAction.Error()
	case errors.As(err, &runErr):
		code = http.StatusBadGateway
		if runErr.TimedOut() {
			code = http.StatusGatewayTimeout
		}
		msg = runErr.Detail
	case errors.As(err, &remote):
		msg = remote.Error()
	case errors.As(err, &protoErr):
		msg = protoErr.Error()
	case errors.Is(err, context.Canceled):
		msg = "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		msg = "upstream call timed out"
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}

func outcomeLabel(err error) string {
	var runErr *turn.RunFailedError
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, turn.ErrRequiresAction):
		return "requires_action"
	case errors.As(err, &runErr):
		return string(runErr.Status)
	default:
		return "error"
	}
}

// errorHandler renders every error as {"error": msg} and logs it.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		ev := logger.Warn()
		if code >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		if he != nil && he.Internal != nil {
			ev = ev.AnErr("cause", he.Internal)
		}
		ev.Int("status", code).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg(msg)
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}
