package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"io"
	"math/big"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

var quiet = logger.Logger{Out: io.Discard, Err: io.Discard}

func TestDirSink(t *testing.T) {
	root := filepath.Join(t.TempDir(), "plain")
	sink := DirSink{Root: root}

	if err := sink.Deliver(context.Background(), "report.txt", []byte("hello world")); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if err := sink.Deliver(context.Background(), "report.txt", []byte("v2")); err != nil {
		t.Fatalf("second Deliver failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "report.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("content = %q, want v2", data)
	}

	if err := sink.Deliver(context.Background(), "../escape", []byte("x")); !errors.Is(err, kerrors.ErrInvalidName) {
		t.Errorf("Deliver(../escape) = %v, want ErrInvalidName", err)
	}
}

func TestLogSink(t *testing.T) {
	var out bytes.Buffer
	sink := LogSink{Logger: logger.Logger{Verbose: true, Out: &out, Err: io.Discard}}
	if err := sink.Deliver(context.Background(), "report.txt", []byte("hello world")); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if !strings.Contains(out.String(), "report.txt (11 bytes)") {
		t.Errorf("unexpected log output %q", out.String())
	}
}

func TestNewMailSinkValidation(t *testing.T) {
	tests := map[string]MailConfig{
		"missing host":     {From: "a@example.com", To: []string{"b@example.com"}},
		"missing from":     {Host: "smtp.example.com", To: []string{"b@example.com"}},
		"missing to":       {Host: "smtp.example.com", From: "a@example.com"},
		"unknown security": {Host: "smtp.example.com", From: "a@example.com", To: []string{"b@example.com"}, Security: "tls13"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewMailSink(cfg, quiet); !errors.Is(err, kerrors.ErrConfig) {
				t.Fatalf("NewMailSink = %v, want ErrConfig", err)
			}
		})
	}

	sink, err := NewMailSink(MailConfig{Host: " smtp.example.com ", From: "a@example.com", To: []string{"b@example.com"}}, quiet)
	if err != nil {
		t.Fatalf("NewMailSink failed: %v", err)
	}
	if sink.cfg.Port != "587" || sink.cfg.Security != "starttls" || sink.cfg.Host != "smtp.example.com" {
		t.Errorf("defaults not applied: %+v", sink.cfg)
	}
}

// fakeSMTP accepts a single session and records the message data. With a
// TLS config it advertises and honours STARTTLS.
type fakeSMTP struct {
	addr    string
	rcpts   []string
	data    chan []byte
	overTLS bool
}

func startFakeSMTP(t *testing.T, tlsConfig *tls.Config) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	s := &fakeSMTP{addr: ln.Addr().String(), data: make(chan []byte, 1)}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { conn.Close() }()
		conn.SetDeadline(time.Now().Add(10 * time.Second))

		r := textproto.NewReader(bufio.NewReader(conn))
		w := bufio.NewWriter(conn)
		reply := func(lines ...string) {
			for _, line := range lines {
				w.WriteString(line + "\r\n")
			}
			w.Flush()
		}

		reply("220 localhost ESMTP")
		for {
			line, err := r.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				if tlsConfig != nil && !s.overTLS {
					reply("250-localhost", "250-STARTTLS", "250 8BITMIME")
				} else {
					reply("250-localhost", "250 8BITMIME")
				}
			case "STARTTLS":
				if tlsConfig == nil || s.overTLS {
					reply("502 not implemented")
					continue
				}
				reply("220 ready")
				tlsConn := tls.Server(conn, tlsConfig)
				if err := tlsConn.Handshake(); err != nil {
					return
				}
				conn = tlsConn
				s.overTLS = true
				r = textproto.NewReader(bufio.NewReader(conn))
				w = bufio.NewWriter(conn)
			case "MAIL":
				reply("250 OK")
			case "RCPT":
				s.rcpts = append(s.rcpts, line)
				reply("250 OK")
			case "DATA":
				reply("354 go ahead")
				body, err := r.ReadDotBytes()
				if err != nil {
					return
				}
				s.data <- body
				reply("250 OK")
			case "QUIT":
				reply("221 bye")
				return
			default:
				reply("502 not implemented")
			}
		}
	}()
	return s
}

// selfSignedTLS returns a server config for 127.0.0.1 and a pool that
// trusts it.
func selfSignedTLS(t *testing.T) (*tls.Config, *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate failed: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate failed: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}, pool
}

func TestMailSinkDeliver(t *testing.T) {
	serverTLS, pool := selfSignedTLS(t)
	tests := []struct {
		security string
		tls      bool
	}{
		{security: "none"},
		{security: "starttls", tls: true},
	}
	for _, tt := range tests {
		t.Run(tt.security, func(t *testing.T) {
			var cfg *tls.Config
			if tt.tls {
				cfg = serverTLS
			}
			server := startFakeSMTP(t, cfg)
			host, port, _ := net.SplitHostPort(server.addr)

			sink, err := NewMailSink(MailConfig{
				Host:     host,
				Port:     port,
				From:     "relay@example.com",
				To:       []string{"ops@example.com", "audit@example.com"},
				Security: tt.security,
			}, quiet)
			if err != nil {
				t.Fatalf("NewMailSink failed: %v", err)
			}
			sink.rootCAs = pool

			payload := bytes.Repeat([]byte("hello world "), 20)
			if err := sink.Deliver(context.Background(), "report.txt", payload); err != nil {
				t.Fatalf("Deliver failed: %v", err)
			}

			var msg string
			select {
			case data := <-server.data:
				msg = string(data)
			case <-time.After(5 * time.Second):
				t.Fatal("no message received")
			}

			if server.overTLS != tt.tls {
				t.Errorf("message sent over TLS = %v, want %v", server.overTLS, tt.tls)
			}
			if len(server.rcpts) != 2 {
				t.Errorf("expected 2 RCPT commands, got %v", server.rcpts)
			}
			for _, want := range []string{
				"From: relay@example.com",
				"To: ops@example.com, audit@example.com",
				"multipart/mixed",
				`filename=report.txt`,
			} {
				if !strings.Contains(msg, want) {
					t.Errorf("message missing %q", want)
				}
			}

			encoded := base64.StdEncoding.EncodeToString(payload)
			if !strings.Contains(strings.ReplaceAll(msg, "\n", ""), encoded[:76]) {
				t.Error("message does not carry the base64 attachment")
			}
		})
	}
}

func TestMailSinkStartTLSRequired(t *testing.T) {
	server := startFakeSMTP(t, nil)
	host, port, _ := net.SplitHostPort(server.addr)

	sink, err := NewMailSink(MailConfig{Host: host, Port: port, From: "a@example.com", To: []string{"b@example.com"}}, quiet)
	if err != nil {
		t.Fatalf("NewMailSink failed: %v", err)
	}
	err = sink.Deliver(context.Background(), "secret.txt", []byte("TOP SECRET"))
	if !errors.Is(err, kerrors.ErrIO) || !strings.Contains(err.Error(), "STARTTLS") {
		t.Fatalf("Deliver = %v, want ErrIO about STARTTLS", err)
	}

	select {
	case <-server.data:
		t.Fatal("message was sent without TLS")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMailSinkDeliverConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	host, port, _ := net.SplitHostPort(addr)

	sink, err := NewMailSink(MailConfig{Host: host, Port: port, From: "a@example.com", To: []string{"b@example.com"}, Security: "none"}, quiet)
	if err != nil {
		t.Fatalf("NewMailSink failed: %v", err)
	}
	if err := sink.Deliver(context.Background(), "x", []byte("x")); !errors.Is(err, kerrors.ErrIO) {
		t.Fatalf("Deliver = %v, want ErrIO", err)
	}
}

func TestWriteBase64Lines(t *testing.T) {
	var buf bytes.Buffer
	data := bytes.Repeat([]byte{0xff}, 200)
	if err := writeBase64Lines(&buf, data); err != nil {
		t.Fatalf("writeBase64Lines failed: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\r\n") {
		if len(line) > 76 {
			t.Errorf("line too long: %d", len(line))
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(buf.String(), "\r\n", ""))
	if err != nil || !bytes.Equal(decoded, data) {
		t.Errorf("round trip mismatch: %v", err)
	}
}
