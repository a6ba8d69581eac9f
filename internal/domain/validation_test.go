package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailValidator_ValidateMail(t *testing.T) {
	v := NewMailValidator()

	tests := []struct {
		name    string
		mail    string
		wantErr error
	}{
		{"Valid email", "test@example.com", nil},
		{"Valid email with subdomain", "user@mail.example.com", nil},
		{"Valid email with plus", "user+tag@example.com", nil},
		{"Valid short local part", "ab@example.com", nil},
		{"Invalid email - no @", "testexample.com", ErrInvalidMail},
		{"Invalid email - no domain", "test@", ErrInvalidMail},
		{"Invalid email - no tld", "test@localhost", ErrInvalidMail},
		{"Invalid email - display name", "Test <test@example.com>", ErrInvalidMail},
		{"Invalid email - empty", "", ErrInvalidMail},
		{"Invalid email - too long", strings.Repeat("a", 250) + "@x.com", ErrMailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateMail(tt.mail)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRecipient_Validate(t *testing.T) {
	v := NewMailValidator()
	valid := Recipient{
		Mail:      "alice@example.com",
		SudtID:    "0xsudt",
		Amount:    "10.5",
		ExpiredAt: 1700000000000,
	}

	t.Run("附言 2047 个字符通过", func(t *testing.T) {
		r := valid
		r.AdditionalMessage = strings.Repeat("m", 2047)
		assert.NoError(t, r.Validate(v))
	})

	t.Run("附言 2048 个字符失败", func(t *testing.T) {
		r := valid
		r.AdditionalMessage = strings.Repeat("m", 2048)
		assert.ErrorIs(t, r.Validate(v), ErrMessageTooLong)
	})

	t.Run("中文附言按字符计数", func(t *testing.T) {
		r := valid
		r.AdditionalMessage = strings.Repeat("领", 2047)
		assert.NoError(t, r.Validate(v))
	})

	t.Run("emoji 附言按 UTF-16 码元计数", func(t *testing.T) {
		r := valid
		r.AdditionalMessage = strings.Repeat("🎉", 1023) + "m"
		assert.NoError(t, r.Validate(v))

		r.AdditionalMessage = strings.Repeat("🎉", 1024)
		assert.ErrorIs(t, r.Validate(v), ErrMessageTooLong)
	})

	t.Run("金额为零失败", func(t *testing.T) {
		r := valid
		r.Amount = "0"
		assert.ErrorIs(t, r.Validate(v), ErrInvalidAmount)
	})

	t.Run("缺少代币 ID 失败", func(t *testing.T) {
		r := valid
		r.SudtID = " "
		assert.ErrorIs(t, r.Validate(v), ErrInvalidSudtID)
	})

	t.Run("过期时间缺失失败", func(t *testing.T) {
		r := valid
		r.ExpiredAt = 0
		assert.ErrorIs(t, r.Validate(v), ErrInvalidExpiredAt)
	})
}

func TestValidateClaimAddress(t *testing.T) {
	assert.NoError(t, ValidateClaimAddress("ckt1qyq"))
	assert.ErrorIs(t, ValidateClaimAddress(strings.Repeat("a", 254)+"b"), ErrAddressTooLong)
	assert.NoError(t, ValidateClaimAddress(strings.Repeat("a", 254)))
	assert.ErrorIs(t, ValidateClaimAddress(""), ErrEmptyAddress)
	assert.ErrorIs(t, ValidateClaimAddress(strings.Repeat("😀", 128)), ErrAddressTooLong)
}

func TestTextLength(t *testing.T) {
	assert.Equal(t, 0, textLength(""))
	assert.Equal(t, 3, textLength("abc"))
	assert.Equal(t, 2, textLength("领取"))
	assert.Equal(t, 2, textLength("🎉"))
	assert.Equal(t, 1, textLength("\xff"))
}
