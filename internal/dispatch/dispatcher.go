// Package dispatch 轮询待发送的领取记录并批量发送邀请邮件。
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/mailer"
	"sudtfaucet/backend/internal/monitoring"
	"sudtfaucet/backend/internal/storage"
)

// 默认值与线上保持一致
const (
	DefaultBatchLimit = 500
	DefaultInterval   = 3 * time.Second
)

// Options 派发参数
type Options struct {
	From       string        // 发件人
	ClaimURL   string        // 领取页面地址
	BatchLimit int           // 每轮最多取多少条
	Interval   time.Duration // 每轮结束后的固定等待
}

// Dispatcher 邮件派发循环
//
// 整批发送成功才把记录标记为 WaitForClaim；失败时状态不变，下一轮原样重试。
type Dispatcher struct {
	repo    storage.ClaimRepository
	sender  mailer.Sender
	opts    Options
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// New 创建派发器，metrics 可以为空
func New(repo storage.ClaimRepository, sender mailer.Sender, opts Options, metrics *monitoring.Metrics, log *zap.Logger) *Dispatcher {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = DefaultBatchLimit
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		repo:    repo,
		sender:  sender,
		opts:    opts,
		metrics: metrics,
		log:     log.With(zap.String("component", "mail-dispatcher")),
	}
}

// RunOnce 执行一轮派发，返回本轮发送成功的邮件数
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	records, err := d.repo.ListClaimRecordsByStatus(ctx, domain.StatusWaitForSendMail, d.opts.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending mails: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	mails := make([]mailer.Mail, 0, len(records))
	secrets := make([]string, 0, len(records))
	for i := range records {
		mails = append(mails, mailer.RenderClaimMail(&records[i], d.opts.From, d.opts.ClaimURL))
		secrets = append(secrets, records[i].Secret)
	}

	err = d.sender.SendBatch(ctx, mails)
	if d.metrics != nil {
		d.metrics.RecordMailBatch(len(mails), err, time.Since(start))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to send %d mails: %w", len(mails), err)
	}

	updated, err := d.repo.TransitionStatusBySecrets(ctx, secrets, domain.StatusWaitForSendMail, domain.StatusWaitForClaim)
	if err != nil {
		return 0, fmt.Errorf("mails sent but failed to update status: %w", err)
	}
	if d.metrics != nil {
		d.metrics.RecordStatusTransition(domain.StatusWaitForClaim.String(), int(updated))
	}
	if updated != int64(len(secrets)) {
		// 发送期间被禁用的记录不会被更新
		d.log.Warn("some records changed status while mails were being sent",
			zap.Int("sent", len(secrets)),
			zap.Int64("updated", updated),
		)
	}

	return len(mails), nil
}

// Run 循环派发直到 ctx 取消；每轮之后固定等待 Interval，错误只记日志
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("mail dispatcher started",
		zap.Int("batch_limit", d.opts.BatchLimit),
		zap.Duration("interval", d.opts.Interval),
	)

	timer := time.NewTimer(d.opts.Interval)
	defer timer.Stop()

	for {
		sent, err := d.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			d.log.Error("an error occurred while sending mails", zap.Error(err))
			if d.metrics != nil {
				d.metrics.RecordError("dispatch", "mail-dispatcher")
			}
		case sent > 0:
			d.log.Info("claim mails sent", zap.Int("count", sent))
		}

		// 每轮结束后重新计时，发送耗时不计入间隔
		timer.Reset(d.opts.Interval)
		select {
		case <-ctx.Done():
			d.log.Info("mail dispatcher stopped")
			return nil
		case <-timer.C:
		}
	}
}
