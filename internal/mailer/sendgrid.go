package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/sync/errgroup"
)

// sendGridClient sendgrid.Client 中用到的方法
type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender 通过 SendGrid v3 API 发送
type SendGridSender struct {
	client      sendGridClient
	concurrency int
}

// NewSendGridSender 创建 SendGrid 发送器
func NewSendGridSender(apiKey string, concurrency int) *SendGridSender {
	return newSendGridSender(sendgrid.NewSendClient(apiKey), concurrency)
}

func newSendGridSender(client sendGridClient, concurrency int) *SendGridSender {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SendGridSender{client: client, concurrency: concurrency}
}

// SendBatch 每封邮件一个请求，并发受 concurrency 限制；任一失败则整批失败
func (s *SendGridSender) SendBatch(ctx context.Context, mails []Mail) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, m := range mails {
		m := m
		g.Go(func() error {
			return s.send(ctx, m)
		})
	}
	return g.Wait()
}

func (s *SendGridSender) send(ctx context.Context, m Mail) error {
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail("", m.From),
		m.Subject,
		sgmail.NewEmail("", m.To),
		m.Text,
		"",
	)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid request to %s failed: %w", m.To, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid status %d for %s: %s", ErrProviderRejected, resp.StatusCode, m.To, resp.Body)
	}
	return nil
}
