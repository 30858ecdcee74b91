// Package token provides the primitives the session agent applies to opaque
// identity tokens without ever interpreting them.
//
//   - Fingerprint: a short, stable digest used in logs and events so the raw
//     token is never written anywhere but the record store.
//   - Sealer: XChaCha20-Poly1305 encryption of the token at rest.
//
// Environment:
//   - JOBMARKET_TOKEN_HMAC_KEY: when set, fingerprints are keyed (HMAC-SHA256).
//   - JOBMARKET_SESSION_SEAL_KEY: hex-encoded 32-byte key enabling sealing.
package token
