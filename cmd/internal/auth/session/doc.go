// Package session implements the jobmarket client session manager.
//
// It holds the opaque identity token and the cached profile, mirrors them to a
// durable record store, revalidates them in the background against the
// identity service, and answers the capability checks that gate every
// protected screen.
//
// Lifecycle phases are first-class: Unauthenticated, Hydrating,
// Authenticated, Revalidating and Invalidated. Hydration trusts the persisted
// record optimistically; revalidation then confirms it, rejects it, or fails
// transiently. Only an authoritative rejection destroys a session. A network
// failure never does.
//
// The token is never parsed here and never logged.
package session
