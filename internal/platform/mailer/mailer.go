package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"ICTSERVE-backend/internal/platform/config"

	"github.com/emersion/go-message/mail"
)

type Message struct {
	To      []string
	Subject string
	Body    string // text/plain
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipients = errors.New("mailer: no recipients specified")

// Build は RFC 5322 メッセージ（UTF-8 / quoted-printable）を組み立てる
func Build(from string, msg Message, now time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("mailer: invalid from %q: %w", from, err)
	}
	to := make([]*mail.Address, 0, len(msg.To))
	for _, a := range msg.To {
		addr, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("mailer: invalid recipient %q: %w", a, err)
		}
		to = append(to, addr)
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ===== SMTP =====

type SMTPMailer struct {
	cfg config.MailConfig
}

func NewSMTP(cfg config.MailConfig) *SMTPMailer { return &SMTPMailer{cfg: cfg} }

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	raw, err := Build(s.cfg.From, msg, time.Now())
	if err != nil {
		return err
	}

	addr := s.cfg.SMTP.Host + ":" + strconv.Itoa(s.cfg.SMTP.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	// ctx の期限切れで接続を落とす
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	if s.cfg.SMTP.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTP.Host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if s.cfg.SMTP.User != "" && s.cfg.SMTP.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.SMTP.User, s.cfg.SMTP.Password, s.cfg.SMTP.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	from, _ := mail.ParseAddress(s.cfg.From)
	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", to, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}
	return client.Quit()
}

// ===== dev / test =====

// LogMailer は送信せずログに出す（mail.enabled=false のとき）
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	l := m.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("[INFO] mail (not sent) to=%v subject=%q", msg.To, msg.Subject)
	return nil
}

// Recorder はテスト用に送信内容を保持する
type Recorder struct {
	mu   sync.Mutex
	Sent []Message
	Err  error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Sent = append(r.Sent, msg)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.Sent))
	copy(out, r.Sent)
	return out
}

func New(cfg config.MailConfig, logger *log.Logger) Mailer {
	if !cfg.Enabled {
		return LogMailer{Logger: logger}
	}
	return NewSMTP(cfg)
}
