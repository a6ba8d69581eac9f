package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SMTPSender 通过 SMTP 中继发送
type SMTPSender struct {
	addr        string
	auth        sasl.Client
	concurrency int
	sendMail    func(addr string, a sasl.Client, from string, to []string, msg []byte) error
}

// NewSMTPSender 创建 SMTP 发送器，用户名为空时不认证
func NewSMTPSender(addr, username, password string, concurrency int) *SMTPSender {
	var auth sasl.Client
	if username != "" {
		auth = sasl.NewPlainClient("", username, password)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SMTPSender{
		addr:        addr,
		auth:        auth,
		concurrency: concurrency,
		sendMail: func(addr string, a sasl.Client, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, a, from, to, bytes.NewReader(msg))
		},
	}
}

// SendBatch 每封邮件一个 SMTP 会话；任一失败则整批失败
func (s *SMTPSender) SendBatch(ctx context.Context, mails []Mail) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, m := range mails {
		m := m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			msg, err := composeMessage(m, time.Now())
			if err != nil {
				return err
			}
			if err := s.sendMail(s.addr, s.auth, m.From, []string{m.To}, msg); err != nil {
				return fmt.Errorf("smtp send to %s failed: %w", m.To, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// composeMessage 生成 RFC 5322 纯文本邮件，正文使用 quoted-printable 编码
func composeMessage(m Mail, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@sudt-faucet>\r\n", uuid.NewString())
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(m.Text)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
