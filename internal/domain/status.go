package domain

import (
	"fmt"
)

// ClaimStatus 领取记录的内部状态
//
// 状态只能沿 claimTransitions 中列出的边移动，其余迁移一律拒绝。
type ClaimStatus string

const (
	StatusWaitForSendMail           ClaimStatus = "WaitForSendMail"
	StatusWaitForClaim              ClaimStatus = "WaitForClaim"
	StatusWaitForTransfer           ClaimStatus = "WaitForTransfer"
	StatusSendingTransaction        ClaimStatus = "SendingTransaction"
	StatusWaitForTransactionCommit  ClaimStatus = "WaitForTransactionCommit"
	StatusWaitForTransactionConfirm ClaimStatus = "WaitForTransactionConfirm"
	StatusDone                      ClaimStatus = "Done"
	StatusTransferSudtError         ClaimStatus = "TransferSudtError"
	StatusSendMailError             ClaimStatus = "SendMailError"
	StatusDisabled                  ClaimStatus = "Disabled"
)

// AllClaimStatuses 全部合法状态，顺序即主流程顺序
var AllClaimStatuses = []ClaimStatus{
	StatusWaitForSendMail,
	StatusWaitForClaim,
	StatusWaitForTransfer,
	StatusSendingTransaction,
	StatusWaitForTransactionCommit,
	StatusWaitForTransactionConfirm,
	StatusDone,
	StatusTransferSudtError,
	StatusSendMailError,
	StatusDisabled,
}

// claimTransitions 状态迁移表：from -> 允许的 to 集合
var claimTransitions = map[ClaimStatus][]ClaimStatus{
	StatusWaitForSendMail:           {StatusWaitForClaim, StatusSendMailError, StatusDisabled},
	StatusWaitForClaim:              {StatusWaitForTransfer, StatusDisabled},
	StatusWaitForTransfer:           {StatusSendingTransaction},
	StatusSendingTransaction:        {StatusWaitForTransactionCommit, StatusTransferSudtError},
	StatusWaitForTransactionCommit:  {StatusWaitForTransactionConfirm, StatusTransferSudtError},
	StatusWaitForTransactionConfirm: {StatusDone, StatusTransferSudtError},
	StatusDone:                      nil,
	StatusTransferSudtError:         nil,
	StatusSendMailError:             nil,
	StatusDisabled:                  nil,
}

// claimStatusRank 状态在迁移图中的先后次序，每条迁移边都严格递增
var claimStatusRank = map[ClaimStatus]int{
	StatusWaitForSendMail:           0,
	StatusWaitForClaim:              1,
	StatusWaitForTransfer:           2,
	StatusSendingTransaction:        3,
	StatusWaitForTransactionCommit:  4,
	StatusWaitForTransactionConfirm: 5,
	StatusDone:                      6,
	StatusTransferSudtError:         6,
	StatusSendMailError:             6,
	StatusDisabled:                  6,
}

// ParseClaimStatus 解析状态字符串，未知状态返回 ErrUnknownStatus
func ParseClaimStatus(s string) (ClaimStatus, error) {
	status := ClaimStatus(s)
	if _, ok := claimTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// Valid 是否为已知状态
func (s ClaimStatus) Valid() bool {
	_, ok := claimTransitions[s]
	return ok
}

// CanTransitionTo 是否允许从 s 迁移到 to
func (s ClaimStatus) CanTransitionTo(to ClaimStatus) bool {
	for _, next := range claimTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 终止状态没有任何出边
func (s ClaimStatus) IsTerminal() bool {
	next, ok := claimTransitions[s]
	return ok && len(next) == 0
}

// Rank 状态的先后次序，同一条记录上 Rank 较大的快照一定更新
func (s ClaimStatus) Rank() int {
	if rank, ok := claimStatusRank[s]; ok {
		return rank
	}
	return -1
}

// Disableable 仅在用户领取之前可以禁用
func (s ClaimStatus) Disableable() bool {
	return s.CanTransitionTo(StatusDisabled)
}

// Public 把内部状态映射为对外的三值状态
func (s ClaimStatus) Public() PublicClaimStatus {
	switch s {
	case StatusWaitForSendMail, StatusWaitForClaim:
		return PublicUnclaimed
	case StatusDisabled:
		return PublicDisabled
	default:
		return PublicClaimed
	}
}

// String 实现 fmt.Stringer
func (s ClaimStatus) String() string {
	return string(s)
}

// ValidateTransition 校验一次迁移，失败时返回包装了双方状态的 ErrInvalidTransition
func ValidateTransition(from, to ClaimStatus) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// SourcesOf 返回所有可以迁移到 to 的状态
func SourcesOf(to ClaimStatus) []ClaimStatus {
	var sources []ClaimStatus
	for _, from := range AllClaimStatuses {
		if from.CanTransitionTo(to) {
			sources = append(sources, from)
		}
	}
	return sources
}
