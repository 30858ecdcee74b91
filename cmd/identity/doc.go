// Package identity holds the user directory behind the development identity
// service: marketplace users, their roles and their password hashes.
//
// The production identity service is external; this package only exists so
// the session agent can be exercised end to end.
package identity
