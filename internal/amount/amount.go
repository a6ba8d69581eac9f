// Package amount 处理十进制定点数字符串与整数最小单位之间的换算。
//
// 所有比较与减法都在 big.Int 上完成，避免浮点误差。
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount 不是合法的十进制数
	ErrInvalidAmount = errors.New("invalid decimal amount")
	// ErrNegativeAmount 数值为负
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrTooManyDecimals 小数位超过代币精度
	ErrTooManyDecimals = errors.New("amount has more fractional digits than allowed")
)

// MaxDecimals 支持的最大精度
const MaxDecimals = 38

// Parse 解析十进制字符串，拒绝负数与指数写法之外的非法输入
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNegativeAmount, s)
	}
	return d, nil
}

// ValidatePositive 校验字符串为大于零的十进制数
func ValidatePositive(s string) error {
	d, err := Parse(s)
	if err != nil {
		return err
	}
	if !d.IsPositive() {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return nil
}

// ParseFixed 把十进制字符串按 decimals 位精度换算为最小单位整数
//
// 例如 ParseFixed("1.5", 8) == 150000000。小数位多于 decimals 时返回 ErrTooManyDecimals。
func ParseFixed(s string, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("decimals out of range: %d", decimals)
	}
	d, err := Parse(s)
	if err != nil {
		return nil, err
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q with %d decimals", ErrTooManyDecimals, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatFixed 把最小单位整数格式化为十进制字符串，去掉多余的尾随零
func FormatFixed(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// Remaining 返回 max - current，结果为负时返回零
func Remaining(max, current *big.Int) *big.Int {
	r := new(big.Int).Sub(max, current)
	if r.Sign() < 0 {
		return new(big.Int)
	}
	return r
}

// LessOrEqual a <= b
func LessOrEqual(a, b *big.Int) bool {
	return a.Cmp(b) <= 0
}
