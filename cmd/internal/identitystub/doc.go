// Package identitystub is a development identity service for the session
// agent. It issues PASETO v4.public tokens on password login, answers
// verification requests, and revokes tokens on logout.
//
// It is not the production identity service and keeps everything in memory.
package identitystub
