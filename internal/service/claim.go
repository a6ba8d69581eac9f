package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/monitoring"
	"sudtfaucet/backend/internal/signer"
	"sudtfaucet/backend/internal/storage"
)

// StatusNotifier 接收领取状态变更，由 websocket hub 实现
type StatusNotifier interface {
	NotifyStatus(secret string, history domain.ClaimHistory)
}

// ClaimService 封装领取记录相关业务操作。
type ClaimService struct {
	repo      storage.ClaimRepository
	signer    signer.Signer
	validator *domain.MailValidator
	metrics   *monitoring.Metrics
	notifier  StatusNotifier
	log       *zap.Logger
	newSecret func() (string, error)
}

// NewClaimService 创建领取业务服务，metrics 可以为空
func NewClaimService(repo storage.ClaimRepository, accountSigner signer.Signer, metrics *monitoring.Metrics, log *zap.Logger) *ClaimService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClaimService{
		repo:      repo,
		signer:    accountSigner,
		validator: domain.NewMailValidator(),
		metrics:   metrics,
		log:       log.With(zap.String("component", "claim-service")),
		newSecret: domain.GenerateSecret,
	}
}

// SetNotifier 设置状态变更通知（避免循环依赖）
func (s *ClaimService) SetNotifier(notifier StatusNotifier) {
	s.notifier = notifier
}

// SendClaimableMails 为每个收件人生成密钥并批量写入待发送记录
//
// 任一收件人校验失败则整批拒绝；邮件由派发循环异步发送。
func (s *ClaimService) SendClaimableMails(ctx context.Context, identity domain.RCIdentity, recipients []domain.Recipient) error {
	if len(recipients) == 0 {
		return domain.ErrEmptyRecipients
	}
	if err := identity.Validate(); err != nil {
		return err
	}
	for _, r := range recipients {
		if err := r.Validate(s.validator); err != nil {
			return err
		}
	}

	records := make([]*domain.ClaimRecord, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		secret, err := s.uniqueSecret(seen)
		if err != nil {
			return err
		}
		records = append(records, domain.NewClaimRecord(identity, r, secret))
	}

	if err := s.repo.InsertClaimRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to save claim records: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordClaimRecordsCreated(len(records))
	}
	s.log.Info("claim records created",
		zap.Int("count", len(records)),
		zap.String("issuer", identity.PubkeyHash),
	)
	return nil
}

func (s *ClaimService) uniqueSecret(seen map[string]struct{}) (string, error) {
	for {
		secret, err := s.newSecret()
		if err != nil {
			return "", err
		}
		if _, dup := seen[secret]; !dup {
			seen[secret] = struct{}{}
			return secret, nil
		}
	}
}

// ListClaimHistory 列出某个代币的全部领取记录
func (s *ClaimService) ListClaimHistory(ctx context.Context, sudtID string) ([]domain.ClaimHistory, error) {
	if strings.TrimSpace(sudtID) == "" {
		return nil, domain.ErrInvalidSudtID
	}
	records, err := s.repo.ListClaimRecordsBySudtID(ctx, sudtID)
	if err != nil {
		return nil, err
	}
	return domain.ProjectClaimHistories(records)
}

// GetClaimHistory 按密钥查询，记录不存在时返回 nil
func (s *ClaimService) GetClaimHistory(ctx context.Context, secret string) (*domain.ClaimHistory, error) {
	if secret == "" {
		return nil, nil
	}
	record, err := s.repo.GetClaimRecordBySecret(ctx, secret)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	history, err := domain.ProjectClaimHistory(record)
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// DisableClaimSecret 禁用一个尚未被领取的密钥
func (s *ClaimService) DisableClaimSecret(ctx context.Context, secret string) error {
	if secret == "" {
		return domain.ErrSecretNotFound
	}

	ok, err := s.repo.TransitionStatus(ctx, secret, domain.SourcesOf(domain.StatusDisabled), domain.StatusDisabled)
	if err != nil {
		return err
	}
	if !ok {
		// 条件更新未命中，重新读取以给出准确原因
		record, err := s.repo.GetClaimRecordBySecret(ctx, secret)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.ErrSecretNotFound
		}
		if err != nil {
			return err
		}
		if record.Status == domain.StatusDisabled {
			return domain.ErrAlreadyDisabled
		}
		return domain.ErrDisableAfterClaim
	}

	s.afterTransition(ctx, secret, domain.StatusDisabled)
	return nil
}

// ClaimSudt 用户提交领取地址
func (s *ClaimService) ClaimSudt(ctx context.Context, secret, address string) error {
	if err := domain.ValidateClaimAddress(address); err != nil {
		return err
	}
	if secret == "" {
		return domain.ErrClaimInvalid
	}

	ok, err := s.repo.ClaimBySecret(ctx, secret, address)
	if err != nil {
		return err
	}
	if !ok {
		_, err := s.repo.GetClaimRecordBySecret(ctx, secret)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.ErrClaimInvalid
		}
		if err != nil {
			return err
		}
		return domain.ErrAlreadyClaimed
	}

	s.log.Info("sudt claimed", zap.String("address", address))
	s.afterTransition(ctx, secret, domain.StatusWaitForTransfer)
	return nil
}

// GetClaimableAccountAddress 返回发放代币的账户地址
func (s *ClaimService) GetClaimableAccountAddress(ctx context.Context) (string, error) {
	return s.signer.Address(ctx)
}

// ListIssuedSudt 尚未接入链上索引
func (s *ClaimService) ListIssuedSudt(_ context.Context) error {
	return domain.ErrNotImplemented
}

// GetClaimableSudtBalance 尚未接入链上索引
func (s *ClaimService) GetClaimableSudtBalance(_ context.Context) error {
	return domain.ErrNotImplemented
}

// afterTransition 记录指标并推送最新投影，失败只记日志
func (s *ClaimService) afterTransition(ctx context.Context, secret string, to domain.ClaimStatus) {
	if s.metrics != nil {
		s.metrics.RecordStatusTransition(to.String(), 1)
	}
	if s.notifier == nil {
		return
	}
	history, err := s.GetClaimHistory(ctx, secret)
	if err != nil || history == nil {
		s.log.Warn("failed to load claim history for notification", zap.Error(err))
		return
	}
	s.notifier.NotifyStatus(secret, *history)
}
