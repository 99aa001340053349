package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

const (
	// HeaderUserID identifies the caller that owns templates and uploads
	HeaderUserID = "X-User-ID"
	// HeaderUserName is recorded as the uploader of a batch
	HeaderUserName = "X-User-Name"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			userID := req.Header.Get(HeaderUserID)
			userName := req.Header.Get(HeaderUserName)
			if userName == "" {
				userName = userID
			}

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetUserID(ctx, userID)
			ctx = context.SetUserName(ctx, userName)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
