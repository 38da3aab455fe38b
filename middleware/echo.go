package middleware

import (
	"net/http"
	"strconv"

	authgate "github.com/MrEthical07/authgate"
	"github.com/labstack/echo/v4"
)

// SubjectKey is the echo context key under which [EchoGuard] stores the
// validated subject.
const SubjectKey = "authgate.subject"

// EchoGuard is [Guard] for Echo handlers. The validated subject is available
// both through c.Get(SubjectKey) and authgate.SubjectFromContext on the
// request context.
func EchoGuard(engine *authgate.Engine, class string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if engine == nil {
				return echoError(c, http.StatusUnauthorized, authgate.ErrEngineNotReady)
			}

			r := c.Request()
			ip := c.RealIP()
			ctx := authgate.WithClientIP(r.Context(), ip)

			identity := engine.LimiterIdentity(r.Header.Get("Authorization"), ip)
			if err := engine.Admit(ctx, class, identity); err != nil {
				return echoAdmitError(c, err)
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				return echoError(c, http.StatusUnauthorized, authgate.ErrMalformedToken)
			}

			subject, err := engine.ValidateAccess(ctx, token)
			if err != nil {
				return echoError(c, http.StatusUnauthorized, err)
			}

			ctx = authgate.WithSubject(ctx, subject)
			c.SetRequest(r.WithContext(ctx))
			c.Set(SubjectKey, subject)
			return next(c)
		}
	}
}

// EchoThrottle is [Throttle] for Echo handlers.
func EchoThrottle(engine *authgate.Engine, class string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if engine == nil {
				return echoError(c, http.StatusServiceUnavailable, authgate.ErrEngineNotReady)
			}

			r := c.Request()
			ip := c.RealIP()
			ctx := authgate.WithClientIP(r.Context(), ip)

			identity := engine.LimiterIdentity(r.Header.Get("Authorization"), ip)
			if err := engine.Admit(ctx, class, identity); err != nil {
				return echoAdmitError(c, err)
			}

			c.SetRequest(r.WithContext(ctx))
			return next(c)
		}
	}
}

func echoAdmitError(c echo.Context, err error) error {
	if retryAfter := authgate.RetryAfter(err); retryAfter > 0 {
		seconds := int(retryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
		return echoError(c, http.StatusTooManyRequests, err)
	}
	return echoError(c, http.StatusServiceUnavailable, err)
}

func echoError(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{
		"error": authgate.ErrorKind(err),
	})
}
