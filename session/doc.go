// Package session owns the mapping between an account and its single active
// refresh-token jti.
//
// The store is Redis-backed so the invariant — at most one valid refresh
// token per subject — holds across every process of a horizontally scaled
// deployment. Rotation is a single Lua compare-and-swap: of N concurrent
// refresh calls presenting the same jti, exactly one rotates and the rest
// observe a mismatch. A mismatch deletes the session outright (fail closed),
// because a stale jti showing up means the token was replayed.
package session
