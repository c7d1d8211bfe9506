package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"storefront/internal/usecase"
)

type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPMailer(host string, port int, user, pass, from string) *SMTPMailer {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}
	return &SMTPMailer{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		auth: auth,
		from: from,
	}
}

// テキストメール1通
func (m *SMTPMailer) Send(ctx context.Context, msg usecase.Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("mail: no recipients")
	}
	if err := smtp.SendMail(m.addr, m.auth, m.from, msg.To, m.build(msg)); err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) build(msg usecase.Mail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// ヘッダインジェクション対策
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// SMTP未設定のとき。内容はログに出すだけ
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(l *slog.Logger) *LogMailer {
	return &LogMailer{log: l}
}

func (m *LogMailer) Send(_ context.Context, msg usecase.Mail) error {
	m.log.Info("mail (smtp disabled)", "to", msg.To, "subject", msg.Subject, "reply_to", msg.ReplyTo)
	return nil
}

var (
	_ usecase.Mailer = (*SMTPMailer)(nil)
	_ usecase.Mailer = (*LogMailer)(nil)
)
