// Package session holds the process-wide authentication state.
//
// A [Manager] owns the signed-in user and bearer token, mirrors them into a
// tokenstore.Store, and moves between three states:
//
//	Unknown --Rehydrate ok--> Authenticated
//	Unknown --Rehydrate fail/absent--> Anonymous
//	Anonymous --Login--> Authenticated
//	Authenticated --Logout or rejected token--> Anonymous
//
// Every transition bumps a generation counter. A rehydration applies its result only if the
// generation it started under is still current, so it cannot undo a newer login or logout.
package session
