// Package password hashes and verifies passwords with Argon2id.
//
// Encoded hashes use the PHC string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
package password
