package pipeline

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

// MailConfig holds SMTP settings for MailSink.
type MailConfig struct {
	Host     string
	Port     string
	From     string
	To       []string
	Security string // starttls (default), ssl or none
	User     string
	Pass     string
}

// MailSink sends each plaintext as an attachment to a fixed list of
// addresses.
type MailSink struct {
	cfg     MailConfig
	log     logger.Logger
	timeout time.Duration
	// rootCAs overrides the system pool when set.
	rootCAs *x509.CertPool
}

// NewMailSink validates cfg and fills in defaults.
func NewMailSink(cfg MailConfig, log logger.Logger) (*MailSink, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.From = strings.TrimSpace(cfg.From)
	cfg.User = strings.TrimSpace(cfg.User)
	cfg.Security = strings.ToLower(strings.TrimSpace(cfg.Security))

	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: mail host and from are required", kerrors.ErrConfig)
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("%w: mail needs at least one recipient address", kerrors.ErrConfig)
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	switch cfg.Security {
	case "":
		cfg.Security = "starttls"
	case "starttls", "ssl", "smtps", "none":
	default:
		return nil, fmt.Errorf("%w: unknown mail security %q", kerrors.ErrConfig, cfg.Security)
	}

	log.Infof("Mail sink enabled host=%s port=%s security=%s user=%s", cfg.Host, cfg.Port, cfg.Security, maskForLog(cfg.User))
	return &MailSink{cfg: cfg, log: log, timeout: 30 * time.Second}, nil
}

func (m *MailSink) Name() string { return "mail" }

// Deliver mails plaintext as an attachment named item.
func (m *MailSink) Deliver(ctx context.Context, item string, plaintext []byte) error {
	msg, err := message(m.cfg.From, m.cfg.To, item, plaintext)
	if err != nil {
		return err
	}

	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	m.log.Debugf("Mailing %s to %s", item, strings.Join(m.cfg.To, ", "))
	switch m.cfg.Security {
	case "ssl", "smtps":
		err = m.sendSSL(msg, timeout)
	case "none":
		err = m.sendPlain(msg, timeout)
	default:
		err = m.sendStartTLS(msg, timeout)
	}
	if err != nil {
		return kerrors.NewIOError("smtp", m.addr(), err)
	}
	return nil
}

func (m *MailSink) sendPlain(msg []byte, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", m.addr(), timeout)
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()
	return m.transmit(client, msg)
}

func (m *MailSink) sendStartTLS(msg []byte, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", m.addr(), timeout)
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	// security=none is the only way to send in the clear.
	if ok, _ := client.Extension("STARTTLS"); !ok {
		return errNoStartTLS
	}
	if err := client.StartTLS(m.tlsConfig()); err != nil {
		return err
	}
	return m.transmit(client, msg)
}

func (m *MailSink) sendSSL(msg []byte, timeout time.Duration) error {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", m.addr(), m.tlsConfig())
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()
	return m.transmit(client, msg)
}

func (m *MailSink) transmit(client *smtp.Client, msg []byte) error {
	if m.cfg.User != "" && m.cfg.Pass != "" {
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return err
	}
	for _, to := range m.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

var errNoStartTLS = errors.New("server does not support STARTTLS")

func (m *MailSink) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: m.cfg.Host, RootCAs: m.rootCAs}
}

func (m *MailSink) addr() string {
	return net.JoinHostPort(m.cfg.Host, m.cfg.Port)
}

// message builds a multipart/mixed mail with a short text part and the
// plaintext attached under its item name.
func message(from string, to []string, item string, attachment []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(text, "Attached: %s (%d bytes)\r\n", item, len(attachment))

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/octet-stream"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": item})},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64Lines(part, attachment); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", item))
	fmt.Fprintf(&buf, "Message-ID: <%s@sealdrop>\r\n", uuid.NewString())
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", mw.Boundary())
	buf.WriteString("\r\n")
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// writeBase64Lines writes data base64 encoded in 76-character lines.
func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", encoded)
	return err
}

func maskForLog(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= 2 {
		return "***"
	}
	return s[:1] + "***" + s[len(s)-1:]
}
