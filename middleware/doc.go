// Package middleware exposes HTTP adapters for the admission and identity
// checks built on top of authgate.Engine.
//
// # Guards
//
//   - [Guard] — rate-limit admission plus access-token validation.
//   - [Throttle] — rate-limit admission only, for anonymous routes.
//   - [EchoGuard], [EchoThrottle] — the same pair for Echo handlers.
//
// Each guard derives the limiter identity from the request, bills the route
// class, then (for Guard) validates the bearer token and injects the subject
// into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement admission logic itself — all decisions are delegated to the
// Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
