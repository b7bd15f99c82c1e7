package transport

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sealdrop/sealdrop/internal/bundle"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

const (
	// FilesField carries the bundle ciphertext.
	FilesField = "files[]"
	// KeyField carries the hex-encoded wrapped key.
	KeyField = "key"
	// RequestIDHeader tags every upload attempt of one bundle.
	RequestIDHeader = "X-Request-ID"

	uploadFileName    = "form.zip"
	uploadContentType = "application/zip"
	maxErrorBody      = 4 << 10
)

// UploaderOptions configures an Uploader. The zero value makes a single
// attempt per bundle.
type UploaderOptions struct {
	Logger logger.Logger
	// Retries is the number of extra attempts after a failed one.
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// Uploader posts bundles to an HTTP endpoint as multipart forms.
type Uploader struct {
	url    string
	client *retryablehttp.Client
	log    logger.Logger
}

// NewUploader returns an Uploader for url.
func NewUploader(url string, opts UploaderOptions) (*Uploader, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: upload url %q must be http or https", kerrors.ErrConfig, url)
	}

	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{opts.Logger}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.RetryMax = max(opts.Retries, 0)
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	}

	return &Uploader{url: url, client: client, log: opts.Logger}, nil
}

// Upload sends one bundle. Any non-2xx response after retries is ErrUpload.
func (u *Uploader) Upload(ctx context.Context, name string, b *bundle.Bundle) error {
	body, contentType, err := encodeForm(b)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u.url, body)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(RequestIDHeader, uuid.NewString())

	u.log.Debugf("Uploading %s (%d bytes) to %s", name, len(body), u.url)
	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", kerrors.ErrUpload, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		u.log.Errorf("HTTP request failed: %s", resp.Status)
		if len(text) > 0 {
			u.log.Errorf("HTTP response text: %s", strings.TrimSpace(string(text)))
		}
		return fmt.Errorf("%w: %s: server replied %s", kerrors.ErrUpload, name, resp.Status)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// encodeForm builds the multipart body: the ciphertext as a file part named
// files[] and the wrapped key as lowercase hex in the key field.
func encodeForm(b *bundle.Bundle) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FilesField, uploadFileName))
	header.Set("Content-Type", uploadContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(b.Ciphertext); err != nil {
		return nil, "", err
	}

	if err := mw.WriteField(KeyField, hex.EncodeToString(b.WrappedKey)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// leveledLogger adapts Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log logger.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorf("%s", formatKV(msg, keysAndValues))
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s", formatKV(msg, keysAndValues))
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s", formatKV(msg, keysAndValues))
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnf("%s", formatKV(msg, keysAndValues))
}

func formatKV(msg string, keysAndValues []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 == 1 {
		fmt.Fprintf(&b, " %v", keysAndValues[len(keysAndValues)-1])
	}
	return b.String()
}
