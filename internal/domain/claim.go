package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// SecretBytes 领取密钥的随机字节数，十六进制编码后为 64 个字符
const SecretBytes = 32

// RCIdentity 发行方的链上身份（公钥哈希 + 标志位）
type RCIdentity struct {
	PubkeyHash string `json:"pubkeyHash"`
	Flag       uint8  `json:"flag"`
}

// ClaimRecord 一条可领取的代币发放记录，每个被邀请的邮箱一行
type ClaimRecord struct {
	ID               uint64      `json:"id" gorm:"primaryKey;autoIncrement"`
	MailAddress      string      `json:"mailAddress" gorm:"column:mail_address;type:varchar(255);not null"`
	IssuerPubkeyHash string      `json:"issuerPubkeyHash" gorm:"column:sudt_issuer_pubkey_hash;type:varchar(66);not null"`
	IssuerRCIDFlag   uint8       `json:"issuerRcIdFlag" gorm:"column:sudt_issuer_rc_id_flag;not null"`
	SudtID           string      `json:"sudtId" gorm:"column:sudt_id;type:varchar(130);index;not null"`
	Amount           string      `json:"amount" gorm:"column:amount;type:varchar(100);not null"`
	Secret           string      `json:"secret" gorm:"column:secret;type:varchar(64);uniqueIndex;not null"`
	MailMessage      string      `json:"mailMessage" gorm:"column:mail_message;type:text"`
	ExpireTime       int64       `json:"expireTime" gorm:"column:expire_time;not null"` // 毫秒时间戳
	ClaimAddress     *string     `json:"claimAddress,omitempty" gorm:"column:claim_address;type:varchar(255)"`
	Status           ClaimStatus `json:"status" gorm:"column:status;type:varchar(32);index;not null"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// TableName 指定表名
func (ClaimRecord) TableName() string {
	return "claim_records"
}

// Claimed 是否已经进入领取之后的状态
func (r *ClaimRecord) Claimed() bool {
	return r.Status.Public() == PublicClaimed
}

// Recipient 一个领取邀请的收件人
type Recipient struct {
	Mail              string `json:"mail"`
	SudtID            string `json:"sudtId"`
	Amount            string `json:"amount"`
	ExpiredAt         int64  `json:"expiredAt"`
	AdditionalMessage string `json:"additionalMessage"`
}

// NewClaimRecord 为收件人创建一条待发送邮件的记录，密钥由调用方生成
func NewClaimRecord(identity RCIdentity, recipient Recipient, secret string) *ClaimRecord {
	return &ClaimRecord{
		MailAddress:      recipient.Mail,
		IssuerPubkeyHash: identity.PubkeyHash,
		IssuerRCIDFlag:   identity.Flag,
		SudtID:           recipient.SudtID,
		Amount:           recipient.Amount,
		Secret:           secret,
		MailMessage:      recipient.AdditionalMessage,
		ExpireTime:       recipient.ExpiredAt,
		Status:           StatusWaitForSendMail,
	}
}

// GenerateSecret 生成一个新的领取密钥（32 字节随机数的十六进制）
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate claim secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
