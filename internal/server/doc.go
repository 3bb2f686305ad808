// Package server runs the short-lived local HTTP listener that receives the OAuth redirect.
//
// The service finishes a browser login by redirecting to {callback}/oauth/success with a
// token (or an authorization code) in the query, or to /oauth/error with a message.
// [OAuthHandler] accepts exactly one such redirect and publishes the outcome on a channel.
//
// Routing goes through [BasicRouter] with [Middleware] for request logging and panic recovery.
package server
