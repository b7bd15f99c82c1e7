// Package bundle implements the encrypted bundle wire format and its
// on-disk layout.
//
// A bundle is two length-prefixed byte strings, ciphertext first:
//
//	+----------------+------------+----------------+-------------+
//	| u64 LE length  | ciphertext | u64 LE length  | wrapped key |
//	+----------------+------------+----------------+-------------+
//
// Bundles are stored one file per (item, recipient) at
// <output>/<recipient>/<item>.
package bundle
