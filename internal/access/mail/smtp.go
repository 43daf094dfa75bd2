package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	netmail "net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/pkg/idx"
)

// DefaultStageTimeout bounds each step of an SMTP exchange.
const DefaultStageTimeout = 10 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// StageTimeout applies to every step separately, DefaultStageTimeout
	// when zero.
	StageTimeout time.Duration

	// RequireTLS fails delivery when the server does not offer STARTTLS.
	RequireTLS bool
}

// SMTPDispatcher sends one message per connection.
type SMTPDispatcher struct {
	cfg  SMTPConfig
	from *netmail.Address

	// tlsConfig is overridden in tests.
	tlsConfig *tls.Config
}

func NewSMTPDispatcher(cfg SMTPConfig) (*SMTPDispatcher, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	from, err := netmail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp from address: %w", err)
	}
	return &SMTPDispatcher{
		cfg:       cfg,
		from:      from,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}, nil
}

// Deliver runs connect, EHLO, STARTTLS, AUTH, MAIL, RCPT, DATA and QUIT,
// each under its own deadline. The connection is always closed.
func (d *SMTPDispatcher) Deliver(ctx context.Context, msg Message) error {
	to, err := netmail.ParseAddress(msg.To)
	if err != nil {
		return &StageError{Stage: "compose", Err: err}
	}
	body, err := d.compose(to, msg)
	if err != nil {
		return &StageError{Stage: "compose", Err: err}
	}

	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.StageTimeout)
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	cancel()
	if err != nil {
		return &StageError{Stage: "connect", Err: err}
	}
	defer conn.Close()

	// Cancelling ctx aborts whatever stage is in flight.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	stage := func(name string, fn func() error) error {
		deadline := time.Now().Add(d.cfg.StageTimeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			return &StageError{Stage: name, Err: err}
		}
		if err := fn(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = errors.Join(ctxErr, err)
			}
			return &StageError{Stage: name, Err: err}
		}
		return nil
	}

	var c *smtp.Client
	if err := stage("greeting", func() (err error) {
		c, err = smtp.NewClient(conn, d.cfg.Host)
		return err
	}); err != nil {
		return err
	}
	defer c.Close()

	if err := stage("hello", func() error { return c.Hello("localhost") }); err != nil {
		return err
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := stage("starttls", func() error { return c.StartTLS(d.tlsConfig) }); err != nil {
			return err
		}
	} else if d.cfg.RequireTLS {
		return &StageError{Stage: "starttls", Err: errors.New("server does not offer STARTTLS")}
	}

	if d.cfg.Username != "" {
		auth := smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
		if err := stage("auth", func() error { return c.Auth(auth) }); err != nil {
			return err
		}
	}

	if err := stage("mail", func() error { return c.Mail(d.from.Address) }); err != nil {
		return err
	}
	if err := stage("rcpt", func() error { return c.Rcpt(to.Address) }); err != nil {
		return err
	}
	if err := stage("data", func() error {
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	}); err != nil {
		return err
	}

	// The server has accepted the message; a failed QUIT does not undo that.
	_ = stage("quit", c.Quit)
	return nil
}

func (d *SMTPDispatcher) compose(to *netmail.Address, msg Message) ([]byte, error) {
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, errors.New("subject contains a line break")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", d.from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("Message-ID", "<"+idx.New().String()+"@"+d.cfg.Host+">")
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		if part.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
