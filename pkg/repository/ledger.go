package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository mirrors order events into a relational table for reporting.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(cfg *config.MySQLConfig) (*LedgerRepository, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return NewLedgerFromDB(db)
}

// NewLedgerFromDB migrates the ledger table on an existing connection.
func NewLedgerFromDB(db *gorm.DB) (*LedgerRepository, error) {
	if err := db.AutoMigrate(&models.LedgerEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &LedgerRepository{db: db}, nil
}

// Publish implements events.Sink. Redelivered events are ignored.
func (l *LedgerRepository) Publish(ctx context.Context, ev events.OrderEvent) error {
	entry := models.LedgerEntry{
		EventID:     ev.ID,
		EventType:   string(ev.Type),
		OrderID:     ev.OrderID,
		OrderNumber: ev.OrderNumber,
		UserID:      ev.UserID,
		Status:      string(ev.Status),
		Total:       ev.Total,
		Amount:      ev.Amount,
		ItemCount:   ev.ItemCount,
		OccurredAt:  ev.OccurredAt,
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("ledger %s for %s: %w", ev.Type, ev.OrderNumber, err)
	}
	return nil
}

func (l *LedgerRepository) EntriesFor(ctx context.Context, orderNumber string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := l.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("occurred_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// NetRevenue sums created order totals minus refunded amounts within [from, to).
func (l *LedgerRepository) NetRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var entries []models.LedgerEntry
	err := l.db.WithContext(ctx).
		Where("event_type IN ? AND occurred_at >= ? AND occurred_at < ?",
			[]string{string(events.OrderCreated), string(events.OrderRefunded)}, from, to).
		Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, e := range entries {
		switch events.Type(e.EventType) {
		case events.OrderCreated:
			sum = sum.Add(e.Total)
		case events.OrderRefunded:
			sum = sum.Sub(e.Amount)
		}
	}
	return sum, nil
}

func (l *LedgerRepository) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
