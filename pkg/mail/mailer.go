package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// ErrSMTPDisabled is returned by Send when delivery is switched off.
var ErrSMTPDisabled = errors.New("mail: smtp delivery disabled")

const defaultSMTPTimeout = 10 * time.Second

type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	HTML    bool
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings is the mailer view of the email configuration.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func (s SMTPSettings) address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// session is the subset of *smtp.Client the mailer drives.
type session interface {
	Auth(smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

type opener func(ctx context.Context, s SMTPSettings) (session, error)

type smtpMailer struct {
	settings SMTPSettings
	open     opener
}

// NewSMTPMailer validates settings and returns a Mailer. A disabled configuration
// yields a mailer whose Send always reports ErrSMTPDisabled.
func NewSMTPMailer(settings SMTPSettings) (Mailer, error) {
	if settings.Enabled {
		if strings.TrimSpace(settings.Host) == "" {
			return nil, errors.New("mail: smtp host is required when enabled")
		}
		if settings.Port <= 0 {
			return nil, errors.New("mail: smtp port is required when enabled")
		}
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultSMTPTimeout
	}
	return &smtpMailer{settings: settings, open: dialSMTP}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.settings.Enabled {
		return ErrSMTPDisabled
	}

	env, err := m.envelope(msg)
	if err != nil {
		return err
	}

	sess, err := m.open(ctx, m.settings)
	if err != nil {
		return err
	}
	defer sess.Close()

	if user := strings.TrimSpace(m.settings.Username); user != "" {
		if err := sess.Auth(smtp.PlainAuth("", user, m.settings.Password, m.settings.Host)); err != nil {
			return fmt.Errorf("mail: authenticate: %w", err)
		}
	}
	if err := sess.Mail(env.from); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	for _, rcpt := range env.to {
		if err := sess.Rcpt(rcpt); err != nil {
			return fmt.Errorf("mail: RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := sess.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(compose(env, msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("mail: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: finish message: %w", err)
	}
	return sess.Quit()
}

type envelope struct {
	from string
	to   []string
}

func (m *smtpMailer) envelope(msg Message) (envelope, error) {
	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(m.settings.From)
	}
	if from == "" {
		return envelope{}, errors.New("mail: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return envelope{}, fmt.Errorf("mail: invalid sender %q: %w", from, err)
	}

	seen := make(map[string]struct{}, len(msg.To))
	env := envelope{from: from}
	for _, raw := range msg.To {
		rcpt := strings.TrimSpace(raw)
		if rcpt == "" {
			continue
		}
		if _, dup := seen[rcpt]; dup {
			continue
		}
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return envelope{}, fmt.Errorf("mail: invalid recipient %q: %w", rcpt, err)
		}
		seen[rcpt] = struct{}{}
		env.to = append(env.to, rcpt)
	}
	if len(env.to) == 0 {
		return envelope{}, errors.New("mail: at least one recipient is required")
	}
	return env, nil
}

// compose renders RFC 5322 headers followed by the body. Non-ASCII subjects
// are Q-encoded.
func compose(env envelope, msg Message) []byte {
	contentType := "text/plain"
	if msg.HTML {
		contentType = "text/html"
	}
	subject := strings.NewReplacer("\r", " ", "\n", " ").Replace(msg.Subject)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", env.from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(env.to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s; charset=UTF-8\r\n\r\n", contentType)
	buf.WriteString(msg.Body)
	return buf.Bytes()
}

func dialSMTP(ctx context.Context, s SMTPSettings) (session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	tlsConfig := &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if s.UseTLS {
		conn, err = (&tls.Dialer{NetDialer: &net.Dialer{Timeout: s.Timeout}, Config: tlsConfig}).DialContext(ctx, "tcp", s.address())
	} else {
		conn, err = (&net.Dialer{Timeout: s.Timeout}).DialContext(ctx, "tcp", s.address())
	}
	if err != nil {
		return nil, fmt.Errorf("mail: dial %s: %w", s.address(), err)
	}
	_ = conn.SetDeadline(time.Now().Add(s.Timeout))

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mail: smtp handshake: %w", err)
	}
	if !s.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("mail: starttls: %w", err)
			}
		}
	}
	return client, nil
}
