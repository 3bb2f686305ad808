// Package auth implements the sign-in surfaces on top of the API client and the session.
//
// [Authenticator] covers password login, registration, the Telegram identity exchange and
// the OAuth token hand-off. Every successful sign-in ends in session.Manager.Login, which
// persists the token. [OAuthFlow] drives the browser redirect login end to end, and
// [Prompter] reads credentials from the terminal.
package auth
