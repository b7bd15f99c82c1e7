// Package pipeline moves items between a source and their destination.
//
// The Encryptor reads plaintext items and, for every recipient, encrypts
// the item under a fresh AES-256 key, wraps that key with the recipient's
// RSA public key and stores the bundle as <output>/<recipient>/<item>. An
// item is confirmed (removed from its source) only after every recipient's
// bundle is on disk; otherwise it stays put and the whole item is redone on
// the next run, overwriting whatever was written before.
//
// The Decryptor reads bundles, unwraps the key with one private key and
// hands the plaintext to a Sink: a directory, an SMTP mailbox or the log.
package pipeline
