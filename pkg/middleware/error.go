package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrorResponse is the body of every non-2xx API response. Meta carries
// details such as the batch id of a failed upload.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error renders httperror and echo errors with their status. Anything else is
// a 500 whose cause is logged but not returned.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()

		code, body := describe(err)
		body.RequestID = context.GetRequestID(ctx)
		body.TraceID = tracing.GetTraceID(ctx)

		log := logger.WithContext(ctx).WithFields(context.Fields(ctx)).WithError(err).WithField("status", code)
		if code >= http.StatusInternalServerError {
			tracing.RecordError(ctx, err)
			log.Error("Request returned a server error")
		} else {
			log.Warn("Request returned a client error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func describe(err error) (int, ErrorResponse) {
	if httperror.IsHTTPError(err) {
		he := httperror.ToHTTPError(err)
		meta := he.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		return httperror.GetStatusCode(err), ErrorResponse{Message: he.Error(), Meta: meta}
	}

	var ee *echo.HTTPError
	if errors.As(err, &ee) {
		message := http.StatusText(ee.Code)
		if msg, ok := ee.Message.(string); ok {
			message = msg
		}
		return ee.Code, ErrorResponse{Message: message, Meta: map[string]any{}}
	}

	return http.StatusInternalServerError, ErrorResponse{Message: "Internal Server Error", Meta: map[string]any{}}
}
