package client

import (
	"errors"
	"fmt"
	"strings"

	"sudtfaucet/backend/internal/amount"
)

// CKBDecimals CKB 的精度
const CKBDecimals = 8

// ChargeForm 发行方给发放账户充值的表单
//
// Balance 是发行方 CKB 余额（最小单位整数字符串），MaxSupply / CurrentSupply 按代币精度书写。
type ChargeForm struct {
	Decimals      int32
	Balance       string
	MaxSupply     string
	CurrentSupply string
	Capacity      string
	MintAmount    string
}

// ChargeErrors 字段级校验结果
type ChargeErrors struct {
	Capacity string `json:"capacity,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// Empty 没有任何错误
func (e ChargeErrors) Empty() bool {
	return e.Capacity == "" && e.Amount == ""
}

// Err 转换为 error，没有错误时返回 nil
func (e ChargeErrors) Err() error {
	if e.Empty() {
		return nil
	}
	var parts []string
	if e.Capacity != "" {
		parts = append(parts, "capacity: "+e.Capacity)
	}
	if e.Amount != "" {
		parts = append(parts, "amount: "+e.Amount)
	}
	return errors.New(strings.Join(parts, "; "))
}

// Validate 校验充值容量不超过余额、增发数量不超过剩余可发行量
func (f ChargeForm) Validate() (ChargeErrors, error) {
	var errs ChargeErrors

	balance, err := amount.ParseFixed(f.Balance, 0)
	if err != nil {
		return errs, fmt.Errorf("invalid balance: %w", err)
	}
	maxSupply, err := amount.ParseFixed(f.MaxSupply, f.Decimals)
	if err != nil {
		return errs, fmt.Errorf("invalid max supply: %w", err)
	}
	currentSupply, err := amount.ParseFixed(f.CurrentSupply, f.Decimals)
	if err != nil {
		return errs, fmt.Errorf("invalid current supply: %w", err)
	}

	if strings.TrimSpace(f.Capacity) == "" {
		errs.Capacity = "Capacity is Required"
	} else if capacity, err := amount.ParseFixed(TruncateDecimals(f.Capacity, CKBDecimals), CKBDecimals); err != nil {
		errs.Capacity = "Capacity must be a non-negative number"
	} else if !amount.LessOrEqual(capacity, balance) {
		errs.Capacity = "Must be less than or equal to " + amount.FormatFixed(balance, CKBDecimals)
	}

	left := amount.Remaining(maxSupply, currentSupply)
	if strings.TrimSpace(f.MintAmount) == "" {
		errs.Amount = "Amount(Ins) is Required"
	} else if mint, err := amount.ParseFixed(TruncateDecimals(f.MintAmount, f.Decimals), f.Decimals); err != nil {
		errs.Amount = "Amount must be a non-negative number"
	} else if !amount.LessOrEqual(mint, left) {
		errs.Amount = "Must be less than or equal to " + amount.FormatFixed(left, f.Decimals)
	}

	return errs, nil
}

// TruncateDecimals 截掉超出精度的小数位，输入框按这个规则处理用户输入
func TruncateDecimals(input string, decimals int32) string {
	input = strings.TrimSpace(input)
	dot := strings.IndexByte(input, '.')
	if dot < 0 {
		return input
	}
	end := dot + 1 + int(decimals)
	if end >= len(input) {
		return input
	}
	if decimals == 0 {
		return input[:dot]
	}
	return input[:end]
}
