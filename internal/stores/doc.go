// Package stores provides Redis-backed, short-lived record stores for
// the email verification flow.
//
// # Design
//
// A consumed-ticket marker is written with SET NX and a TTL matching the
// ticket's remaining validity. The NX write is the single-use gate: the
// first confirm claims the marker, every later confirm of the same ticket
// observes it and is rejected as a replay.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package.
//   - Validate token signatures or expiry — that is the token codec's job.
package stores
