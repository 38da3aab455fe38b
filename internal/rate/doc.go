// Package rate implements the Redis-backed admission-control limiter.
//
// # Window semantics
//
// Fixed-window counters: a single Lua script increments the (class, identity)
// counter, arms the window TTL on the first hit, and compares against the
// budget, so increment-and-compare is atomic per key across all processes
// sharing the Redis instance. Denials carry a retry-after derived from the
// key's remaining PTTL.
//
// The increment always stands, even when the caller's request is later
// cancelled: the budget prices work offered, not work completed.
//
// # What this package must NOT do
//
//   - Decide key derivation policy (identity vs. IP precedence lives in the
//     middleware and engine).
//   - Be imported outside the authgate module.
package rate
