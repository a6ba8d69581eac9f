package domain

import "errors"

// 输入校验错误
var (
	ErrEmptyRecipients  = errors.New("call send_claimable_mails with empty payload")
	ErrMessageTooLong   = errors.New("error: additional message character length should not exceed 2048")
	ErrAddressTooLong   = errors.New("error: mail address character length should not exceed 255")
	ErrMailTooLong      = errors.New("error: recipient mail character length should not exceed 255")
	ErrInvalidMail      = errors.New("error: invalid recipient mail address")
	ErrInvalidAmount    = errors.New("error: amount must be a positive decimal number")
	ErrInvalidSudtID    = errors.New("error: sudt id is required")
	ErrInvalidIdentity  = errors.New("error: rc identity pubkey hash is required")
	ErrEmptySecret      = errors.New("error: claim secret is required")
	ErrEmptyAddress     = errors.New("error: claim address is required")
	ErrInvalidExpiredAt = errors.New("error: expired time must be positive")
)

// 状态前置条件错误
var (
	ErrSecretNotFound    = errors.New("error: secret not found")
	ErrClaimInvalid      = errors.New("The claim is invalid. Please make sure you have a valid claim invitation")
	ErrAlreadyDisabled   = errors.New("error: already disabled")
	ErrDisableAfterClaim = errors.New("error: can not disable secret after user claimed")
	ErrAlreadyClaimed    = errors.New("It seems you have already claimed")
	ErrInvalidTransition = errors.New("invalid claim status transition")
	ErrUnknownStatus     = errors.New("exception: unknown record status")
	ErrDuplicateSecret   = errors.New("claim secret already exists")
	ErrRecordNotFound    = errors.New("claim record not found")
)

// 认证与未实现错误
var (
	ErrUnauthorized   = errors.New("Only the owner is allowed to access")
	ErrNotImplemented = errors.New("not implemented")
)
