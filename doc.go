// Package authgate is the request-admission and identity core for a
// contacts-management REST API: signed access/refresh/verification tokens,
// password credential verification, single-active-session refresh rotation,
// and a Redis-backed rate limiter consulted before any business logic runs.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types (Account, TokenPair, MetricsSnapshot). All
// internal coordination — flow orchestration, rate limiting, consumed-ticket
// tracking, audit dispatch — lives under internal/ and is never exported.
// HTTP adapters live in middleware/; reference collaborator implementations
// live in sqlaccounts/ (MySQL account store) and mailqueue/ (AMQP mailer).
//
// # Shared state
//
// The refresh-session store and the limiter buckets are the only mutable
// shared state. Both live in Redis and every read-modify-write on them is a
// single Lua script, so rotation and admission are linearizable per key even
// across multiple processes.
package authgate
