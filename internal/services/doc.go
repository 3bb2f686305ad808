// Package services implements the HTTP client for the price-tracking service.
//
// # Client
//
// [APIService] exposes one typed method per endpoint (auth, products, watches, health).
// It decodes JSON bodies into models types and converts failures into shared errors:
//   - transport failures : [shared.ErrServiceUnavailable] or [shared.ErrTimeout]
//   - 401 : [*shared.APIError] wrapping [shared.ErrUnauthorized]
//   - 400/422 : [*shared.APIError] wrapping [shared.ErrValidation], with FastAPI field errors
//   - other non-2xx : [*shared.APIError] wrapping [shared.ErrAPIRequest]
//
// # Authorization
//
// [AuthTransport] is an [http.RoundTripper] that attaches the bearer token to every request.
// The token comes from, in order: a per-request override set with [WithToken], the session's
// in-memory token, the token store. A 401 response demotes the session and clears the store
// unless the rejected token has already been replaced. The response itself is passed through
// unchanged; nothing is retried.
//
// The transport also stamps an X-Request-ID header and applies an optional client-side
// rate limit.
package services
