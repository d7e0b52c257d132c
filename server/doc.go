// Package server implements the OAuth 2.0 authorization code grant:
// authorization request validation, resource owner authentication, atomic
// code redemption, HS256 access token issuance, and scope-filtered
// userinfo introspection.
//
// The package is transport-agnostic. The root package adapts it to HTTP;
// everything here operates on plain request/response structs so the flow
// logic can be tested without a listener.
package server
