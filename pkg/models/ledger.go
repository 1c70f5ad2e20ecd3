package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry is the relational mirror of an order event, kept for reporting.
type LedgerEntry struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"event_id"`
	EventType   string          `gorm:"type:varchar(40);not null;index" json:"event_type"`
	OrderID     string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	OrderNumber string          `gorm:"type:varchar(20);not null;index" json:"order_number"`
	UserID      string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Status      string          `gorm:"type:varchar(20)" json:"status"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	ItemCount   int             `json:"item_count"`
	OccurredAt  time.Time       `gorm:"index" json:"occurred_at"`
	CreatedAt   time.Time       `json:"created_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (LedgerEntry) TableName() string {
	return "order_ledger"
}
