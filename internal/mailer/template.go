package mailer

import (
	"fmt"
	"net/url"
	"time"

	"sudtfaucet/backend/internal/domain"
)

// ClaimMailSubject 领取邮件标题
const ClaimMailSubject = "Claim token with secret"

// ClaimLink 在领取页面地址上追加 claim_secret 参数
func ClaimLink(claimURL, secret string) string {
	u, err := url.Parse(claimURL)
	if err != nil {
		return claimURL + "?claim_secret=" + url.QueryEscape(secret)
	}
	q := u.Query()
	q.Set("claim_secret", secret)
	u.RawQuery = q.Encode()
	return u.String()
}

// RenderClaimMail 渲染领取邀请邮件
func RenderClaimMail(record *domain.ClaimRecord, from, claimURL string) Mail {
	expire := time.UnixMilli(record.ExpireTime).UTC().Format(time.RFC3339)
	text := fmt.Sprintf("Hi, %s\nClick this link to claim %s tokens before %s:\n%s",
		record.MailMessage, record.Amount, expire, ClaimLink(claimURL, record.Secret))

	return Mail{
		To:      record.MailAddress,
		From:    from,
		Subject: ClaimMailSubject,
		Text:    text,
	}
}
