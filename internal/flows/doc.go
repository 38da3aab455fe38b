// Package flows contains the request-admission flow logic, decoupled from
// the root engine through dependency structs.
//
// # Design
//
// Each flow is a pure function taking a Deps struct of funcs. The root
// engine wires concrete collaborators (codec, hasher, session store, limiter,
// audit, metrics) into those funcs once at build time. Sentinel errors are
// injected through each flow's Errors struct so this package never imports
// the root package.
//
// # What this package must NOT do
//
//   - Import authgate (the root package).
//   - Talk to Redis, SQL, or SMTP directly — only through injected funcs.
//   - Log through a concrete logger; warnings go through the injected Warn.
package flows
