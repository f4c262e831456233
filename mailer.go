package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

const (
	implicitTLSPort = 465
	subjectPrefix   = "[Article] "
	messageIDDomain = "kindle-send.local"
	deliveryNote    = "Sent with kindle-send. The article is attached as an HTML document.\r\n"
)

// smtpSession is the part of *smtp.Client the mailer uses
type smtpSession interface {
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

type dialFunc func(ctx context.Context, host string, port int) (smtpSession, error)

// Mailer delivers documents to a Kindle address over SMTP
type Mailer struct {
	dial   dialFunc
	now    func() time.Time
	logger *slog.Logger
}

// NewMailer creates a mailer with one bounded connect timeout and no retries
func NewMailer(settings SMTPSettings, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		dial:   dialSMTP(settings.ConnectTimeout, settings.CommandTimeout),
		now:    time.Now,
		logger: logger,
	}
}

// Send makes exactly one delivery attempt. Authentication rejections are
// reported as *AuthError, everything else as *SendError. The session is
// closed on every path.
func (m *Mailer) Send(ctx context.Context, creds Credentials, doc *Document) error {
	msg, err := m.composeMessage(creds, doc)
	if err != nil {
		return &SendError{Stage: "compose", Err: err}
	}

	logger := m.logger.With(Operation("smtp.send"), slog.Any("credentials", creds))
	logger.Info("email send start", slog.String("title", doc.Title), slog.Int("bytes", len(msg)))

	session, err := m.dial(ctx, creds.SMTPHost, creds.SMTPPort)
	if err != nil {
		return &SendError{Stage: "connect", Err: err}
	}
	defer session.Close()

	if err := session.Auth(sasl.NewPlainClient("", creds.SenderAddress, creds.SenderSecret)); err != nil {
		if isAuthRejection(err) {
			return &AuthError{Err: err}
		}
		return &SendError{Stage: "auth", Err: err}
	}

	if err := session.SendMail(creds.SenderAddress, []string{creds.KindleAddress}, bytes.NewReader(msg)); err != nil {
		return &SendError{Stage: "send", Err: err}
	}

	// The server has accepted the message at this point.
	if err := session.Quit(); err != nil {
		logger.Warn("smtp quit failed", Err(err))
	}

	logger.Info("email send end", slog.String("title", doc.Title))
	return nil
}

// isAuthRejection reports whether err is the server refusing the
// credentials rather than a transport problem.
func isAuthRejection(err error) bool {
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		return false
	}
	switch smtpErr.Code {
	case 530, 534, 535:
		return true
	}
	return false
}

// composeMessage builds a multipart/mixed message with a short note and the
// document attached as HTML.
func (m *Mailer) composeMessage(creds Credentials, doc *Document) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.clock())
	h.SetAddressList("From", []*mail.Address{{Address: creds.SenderAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: creds.KindleAddress}})
	h.SetSubject(subjectPrefix + doc.Title)
	h.SetMessageID(uuid.NewString() + "@" + messageIDDomain)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating inline part: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := iw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	if _, err := io.WriteString(tw, deliveryNote); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	var ah mail.AttachmentHeader
	ah.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	ah.SetFilename(doc.Filename)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("creating attachment: %w", err)
	}
	if _, err := aw.Write(doc.HTML); err != nil {
		return nil, fmt.Errorf("writing attachment: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finishing message: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Mailer) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// dialSMTP connects with a single bounded timeout covering the TCP dial,
// the greeting, STARTTLS and the TLS handshake. Port 465 speaks TLS from
// the first byte; every other port must offer STARTTLS.
func dialSMTP(connectTimeout, commandTimeout time.Duration) dialFunc {
	return func(ctx context.Context, host string, port int) (smtpSession, error) {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		dialer := &net.Dialer{Timeout: connectTimeout}

		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", addr, err)
		}

		// go-smtp resets the connection deadline on every exchange, so the
		// setup bound is enforced by closing the connection instead.
		stop := context.AfterFunc(dialCtx, func() { conn.Close() })

		client, err := openSession(conn, host, port)
		if !stop() {
			if client != nil {
				client.Close()
			}
			return nil, fmt.Errorf("connecting to %s: %w", addr, context.Cause(dialCtx))
		}
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("connecting to %s: %w", addr, err)
		}

		if commandTimeout > 0 {
			client.CommandTimeout = commandTimeout
			client.SubmissionTimeout = commandTimeout
		}
		return client, nil
	}
}

// openSession reads the greeting, upgrades to TLS and says EHLO over the
// encrypted channel so the handshake happens during setup.
func openSession(conn net.Conn, host string, port int) (*smtp.Client, error) {
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	var client *smtp.Client
	if port == implicitTLSPort {
		client = smtp.NewClient(tls.Client(conn, tlsConfig))
	} else {
		var err error
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	if err := client.Hello("localhost"); err != nil {
		client.Close()
		return nil, fmt.Errorf("ehlo: %w", err)
	}
	return client, nil
}
