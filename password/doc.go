// Package password hashes and verifies login secrets with argon2id.
//
// Digests are PHC-formatted strings carrying their own parameters, so
// verification works across cost upgrades and [Hasher.NeedsRehash] can tell
// when a stored digest lags the configured cost. Verification is
// deliberately expensive and constant-time. A mismatch is a false result,
// not an error; only an unparseable digest is an error, and it is a
// distinct one ([ErrCorruptDigest]).
//
// The raw secret is never stored, logged, or included in any error.
package password
