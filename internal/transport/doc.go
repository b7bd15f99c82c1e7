// Package transport moves bundles off the relay host.
//
// Uploader posts a bundle as a multipart form (files[] holds the ciphertext
// as form.zip, key holds the wrapped key in hex) and retries transient
// failures with go-retryablehttp. Sender drives an Uploader from a source
// and deletes each bundle once the server has accepted it.
//
// Server is a minimal receiving end for development: POST /upload accepts
// forms up to 50 MB and answers "success".
package transport
