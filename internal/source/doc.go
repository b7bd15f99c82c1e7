// Package source abstracts where plaintext and bundle items arrive from.
//
// A source specification string selects the backend: an absolute path
// watches a local directory with inotify, and [user@]host:path polls a
// remote directory over SFTP every five seconds.
//
// Delivery is at-least-once. Next hands out an item without removing it and
// Confirm deletes the backing file, so an item that is never confirmed is
// seen again by the next run (directory backend) or the next poll (remote
// backend).
package source
