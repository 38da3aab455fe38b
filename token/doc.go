// Package token creates and validates the signed, expiring tokens the engine
// hands out: access tokens, refresh tokens, and email-verification tickets.
//
// Every token carries a subject, a closed purpose claim, and a unique jti so
// reuse can be detected without a lookup at parse time. Signing is HS256 or
// Ed25519. The clock is injected so expiry is testable without real delays;
// cryptographic operations are pure and never block.
//
// # What this package must NOT do
//
//   - Touch Redis or any store. Session state is the session package's job.
//   - Accept a token whose purpose differs from the caller's expectation:
//     an access token replayed as a refresh token is a hard error here.
package token
