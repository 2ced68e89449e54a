package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a monetary account whose mailbox is watched for transfer notices.
type Account struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Alias         string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_accounts_alias"`
	BankAlias     string    `gorm:"type:varchar(128);not null"`
	AccountNumber string    `gorm:"type:varchar(64);not null"`
	MailAddress   string    `gorm:"type:varchar(255);not null"`
	MailSecret    string    `gorm:"type:varchar(255);not null"`
	OwnerName     string    `gorm:"type:varchar(255);not null"`
	Active        bool      `gorm:"not null;default:true;index"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
}

func (Account) TableName() string { return "accounts" }

// Transaction is one credited amount, keyed by the mail message that reported it.
type Transaction struct {
	ID              string          `gorm:"type:varchar(36);primaryKey"`
	Amount          decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	SourceMessageID string          `gorm:"type:varchar(512);not null;uniqueIndex:ux_transactions_source_message_id"`
	AccountAlias    string          `gorm:"type:varchar(64);not null;index"`
	RecordedAt      time.Time       `gorm:"not null;index"`
}

func (Transaction) TableName() string { return "transactions" }

type Session struct {
	UserID              int64           `gorm:"primaryKey;autoIncrement:false"`
	DisplayName         string          `gorm:"type:varchar(255)"`
	AssignedAccountName string          `gorm:"type:varchar(64)"`
	State               string          `gorm:"type:varchar(64);not null"`
	PendingAmount       decimal.Decimal `gorm:"type:decimal(14,2)"`
	CreatedAt           time.Time       `gorm:"not null"`
	UpdatedAt           time.Time       `gorm:"not null;autoUpdateTime"`
}

func (Session) TableName() string { return "sessions" }
