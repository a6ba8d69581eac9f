package domain

import "fmt"

// PublicClaimStatus 对外暴露的三值领取状态
type PublicClaimStatus string

const (
	PublicUnclaimed PublicClaimStatus = "unclaimed"
	PublicClaimed   PublicClaimStatus = "claimed"
	PublicDisabled  PublicClaimStatus = "disabled"
)

// 链上结算数据尚未接入，已领取记录使用占位值
const (
	PendingTxHash = "undo"
)

// ClaimStatusView 领取状态视图
//
// 只有 claimed 状态会填充 ClaimedStartAt / TxHash / ClaimedAt / Address。
type ClaimStatusView struct {
	Status         PublicClaimStatus `json:"status"`
	ClaimedStartAt *int64            `json:"claimedStartAt,omitempty"`
	TxHash         string            `json:"txHash,omitempty"`
	ClaimedAt      *int64            `json:"claimedAt,omitempty"`
	Address        string            `json:"address,omitempty"`
}

// ClaimHistory 领取记录的只读投影
type ClaimHistory struct {
	Mail        string          `json:"mail"`
	CreatedAt   int64           `json:"createdAt"` // 毫秒时间戳
	ExpiredAt   int64           `json:"expiredAt"`
	Amount      string          `json:"amount"`
	ClaimSecret string          `json:"claimSecret"`
	ClaimStatus ClaimStatusView `json:"claimStatus"`
}

// ProjectClaimHistory 把内部记录映射为对外投影，未知状态返回 ErrUnknownStatus
func ProjectClaimHistory(r *ClaimRecord) (ClaimHistory, error) {
	if !r.Status.Valid() {
		return ClaimHistory{}, fmt.Errorf("%w: %q", ErrUnknownStatus, r.Status)
	}
	return ClaimHistory{
		Mail:        r.MailAddress,
		CreatedAt:   r.CreatedAt.UnixMilli(),
		ExpiredAt:   r.ExpireTime,
		Amount:      r.Amount,
		ClaimSecret: r.Secret,
		ClaimStatus: projectStatus(r),
	}, nil
}

// ProjectClaimHistories 批量投影
func ProjectClaimHistories(records []ClaimRecord) ([]ClaimHistory, error) {
	histories := make([]ClaimHistory, 0, len(records))
	for i := range records {
		history, err := ProjectClaimHistory(&records[i])
		if err != nil {
			return nil, err
		}
		histories = append(histories, history)
	}
	return histories, nil
}

func projectStatus(r *ClaimRecord) ClaimStatusView {
	switch r.Status.Public() {
	case PublicUnclaimed:
		return ClaimStatusView{Status: PublicUnclaimed}
	case PublicDisabled:
		return ClaimStatusView{Status: PublicDisabled}
	}

	var zero int64
	view := ClaimStatusView{
		Status:         PublicClaimed,
		ClaimedStartAt: &zero,
		TxHash:         PendingTxHash,
		ClaimedAt:      &zero,
	}
	if r.ClaimAddress != nil {
		view.Address = *r.ClaimAddress
	}
	return view
}
