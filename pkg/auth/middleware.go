package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DefaultCallerHeader is the header the trusted front sets after authenticating a request.
const DefaultCallerHeader = "X-Caller-Identity"

// callerKey is the echo context key holding the parsed caller.
const callerKey = "caller_identity"

// CallerMiddleware creates an Echo middleware that lifts the caller identity
// asserted by the trusted front out of header and into the request context.
//
// Requests without the header pass through untouched; operations that need a
// caller reject them later. A header that is present but malformed is rejected
// here with 400, since the front should never forward one.
//
// Example usage:
//
//	e := echo.New()
//	e.Use(auth.CallerMiddleware(auth.DefaultCallerHeader))
func CallerMiddleware(header string) echo.MiddlewareFunc {
	if header == "" {
		header = DefaultCallerHeader
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(header)
			if raw == "" {
				return next(c)
			}

			caller, err := ParseIdentity(raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]interface{}{
					"code":    "InvalidCaller",
					"message": err.Error(),
				})
			}

			c.Set(callerKey, caller)
			req := c.Request()
			c.SetRequest(req.WithContext(WithCaller(req.Context(), caller)))

			return next(c)
		}
	}
}

// CallerFromEcho returns the caller stored by CallerMiddleware.
func CallerFromEcho(c echo.Context) (Identity, bool) {
	id, ok := c.Get(callerKey).(Identity)
	return id, ok && !id.IsZero()
}
