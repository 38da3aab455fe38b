package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	authgate "github.com/MrEthical07/authgate"
)

// Guard returns middleware enforcing admission control and access-token
// validation for one route class. Denied requests get a JSON error body with
// a stable "error" kind; rate-limit denials additionally carry a Retry-After
// header. On success the subject and client IP ride the request context.
func Guard(engine *authgate.Engine, class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, authgate.ErrEngineNotReady)
				return
			}

			ip := clientIP(r)
			ctx := authgate.WithClientIP(r.Context(), ip)

			identity := engine.LimiterIdentity(r.Header.Get("Authorization"), ip)
			if err := engine.Admit(ctx, class, identity); err != nil {
				writeAdmitError(w, err)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, authgate.ErrMalformedToken)
				return
			}

			subject, err := engine.ValidateAccess(ctx, token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			ctx = authgate.WithSubject(ctx, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Throttle returns middleware enforcing admission control only. Anonymous
// routes (login, signup, verification) use this: no token is required, but
// the per-identity budget still applies.
func Throttle(engine *authgate.Engine, class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusServiceUnavailable, authgate.ErrEngineNotReady)
				return
			}

			ip := clientIP(r)
			ctx := authgate.WithClientIP(r.Context(), ip)

			identity := engine.LimiterIdentity(r.Header.Get("Authorization"), ip)
			if err := engine.Admit(ctx, class, identity); err != nil {
				writeAdmitError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAdmitError(w http.ResponseWriter, err error) {
	if retryAfter := authgate.RetryAfter(err); retryAfter > 0 {
		seconds := int(retryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, err)
		return
	}
	writeError(w, http.StatusServiceUnavailable, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": authgate.ErrorKind(err),
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
