// Package secrets provides the cryptographic primitives of sealdrop.
//
// # Encryption Architecture
//
// sealdrop uses a hybrid encryption scheme, applied independently to every
// payload and every recipient:
//
//  1. A fresh random 256-bit key encrypts the payload with AES-256-CBC
//  2. The recipient's RSA public key wraps that key with PKCS#1 v1.5
//  3. The recipient unwraps the key with their private key, then decrypts
//
// The IV is fixed at zero. This is only sound because a key never encrypts
// more than one payload, so Cipher is single use: a second Encrypt or
// Decrypt returns ErrCipherSpent, and NewCipher(nil) is the only way to get
// a key for encryption.
//
// # Key Documents
//
// Recipient keys are exchanged as small JSON documents:
//
//	{"kty": "RSA", "n": "...", "e": "AQAB"}
//
// Private documents add d, p, q, dmp1, dmq1 and iqmp. Every component is
// an unpadded base64url big-endian integer. Parsing is strict: unknown or
// missing fields, a kty other than RSA, or an undecodable component fail.
//
// KeyFetcher retrieves public key documents from URLs or local paths and
// caches them in memory and, optionally, on disk.
package secrets
