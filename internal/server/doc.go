// Package server provides the loopback HTTP plumbing for the OAuth2
// authorization code flow.
//
// When the user authenticates, a temporary server starts on the redirect
// URI's port, serves a single callback, and shuts down once the token
// exchange completes. The [CallbackHandler] validates the state parameter,
// exchanges the code, and delivers the result over a channel; it processes
// exactly one callback.
//
// The [Router] interface and [BasicRouter] implementation carry the
// middleware stack ([Middleware] wraps in reverse registration order) so the
// callback server logs requests the same way the rest of the application
// does.
package server
