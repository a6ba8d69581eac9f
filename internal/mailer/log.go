package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogSender 开发模式发送器，只把邮件写进日志
type LogSender struct {
	log *zap.Logger
}

// NewLogSender 创建日志发送器
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log.With(zap.String("component", "log-mailer"))}
}

// SendBatch 记录每封邮件，总是成功
func (s *LogSender) SendBatch(_ context.Context, mails []Mail) error {
	for _, m := range mails {
		s.log.Info("mail sent",
			zap.String("to", m.To),
			zap.String("subject", m.Subject),
			zap.String("text", m.Text),
		)
	}
	return nil
}
