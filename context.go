package authgate

import "context"

type clientIPContextKey struct{}
type subjectContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for limiter key derivation on anonymous traffic and for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the IP attached by [WithClientIP], or "".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// WithSubject attaches an authenticated subject identity to ctx. The
// middleware sets it after access-token validation; handlers read it back
// with [SubjectFromContext].
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext returns the subject attached by [WithSubject].
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	subject, ok := ctx.Value(subjectContextKey{}).(string)
	return subject, ok && subject != ""
}
