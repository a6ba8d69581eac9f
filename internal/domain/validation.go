package domain

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf16"

	"sudtfaucet/backend/internal/amount"
)

// 长度限制，均为严格小于，按 UTF-16 码元计数
const (
	MaxMailLength    = 255  // 收件人邮箱
	MaxAddressLength = 255  // 领取地址
	MaxMessageLength = 2048 // 附言
)

// 域名验证（支持子域名）
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// MailValidator 收件人邮箱验证器
type MailValidator struct{}

// NewMailValidator 创建邮箱验证器
func NewMailValidator() *MailValidator {
	return &MailValidator{}
}

// ValidateMail 验证收件人邮箱地址
func (v *MailValidator) ValidateMail(address string) error {
	if textLength(address) >= MaxMailLength {
		return ErrMailTooLong
	}

	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != strings.TrimSpace(address) {
		return ErrInvalidMail
	}

	at := strings.LastIndex(parsed.Address, "@")
	if at <= 0 || at == len(parsed.Address)-1 {
		return ErrInvalidMail
	}
	if !domainRegex.MatchString(parsed.Address[at+1:]) {
		return ErrInvalidMail
	}

	return nil
}

// Validate 校验单个收件人，附言长度必须小于 2048
func (r Recipient) Validate(v *MailValidator) error {
	if textLength(r.AdditionalMessage) >= MaxMessageLength {
		return ErrMessageTooLong
	}
	if err := v.ValidateMail(r.Mail); err != nil {
		return err
	}
	if strings.TrimSpace(r.SudtID) == "" {
		return ErrInvalidSudtID
	}
	if err := amount.ValidatePositive(r.Amount); err != nil {
		return ErrInvalidAmount
	}
	if r.ExpiredAt <= 0 {
		return ErrInvalidExpiredAt
	}
	return nil
}

// Validate 校验发行方身份
func (id RCIdentity) Validate() error {
	if strings.TrimSpace(id.PubkeyHash) == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// ValidateClaimAddress 领取地址不能为空且长度小于 255
func ValidateClaimAddress(address string) error {
	if textLength(address) >= MaxAddressLength {
		return ErrAddressTooLong
	}
	if strings.TrimSpace(address) == "" {
		return ErrEmptyAddress
	}
	return nil
}

// textLength 字符串的 UTF-16 码元数，BMP 以外的字符（如 emoji）计为 2
func textLength(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
