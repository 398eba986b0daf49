// Package common contains shared constants, error kinds and small helpers
// used across Wellkeeper components.
package common

// AuthorizationHeaderName is the HTTP header carrying bearer credentials.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token value in AuthorizationHeaderName.
const BearerPrefix = "Bearer "

// MinPasswordLength is the shortest password accepted on register, upgrade,
// reset and change.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72
