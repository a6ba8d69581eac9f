// Package mailer 负责把领取邀请邮件交给外部邮件服务。
package mailer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sudtfaucet/backend/internal/config"
)

// ErrProviderRejected 邮件服务返回非 2xx
var ErrProviderRejected = errors.New("mail provider rejected request")

// Mail 一封待发送的纯文本邮件
type Mail struct {
	To      string
	From    string
	Subject string
	Text    string
}

// Sender 批量发送邮件，整批成功才返回 nil
type Sender interface {
	SendBatch(ctx context.Context, mails []Mail) error
}

// NewSender 按配置创建邮件发送器
func NewSender(cfg *config.MailConfig, log *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "sendgrid":
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.Concurrency), nil
	case "smtp":
		return NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.Concurrency), nil
	case "log", "":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.Provider)
	}
}
