package audit

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"main/pkg/conn"
)

// auditRow is the persistence shape of a Record.
type auditRow struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Seq        uint64    `gorm:"index"`
	RecordID   string    `gorm:"size:36;uniqueIndex"`
	Kind       string    `gorm:"size:32;index"`
	StrategyID string    `gorm:"size:64;index"`
	Symbol     string    `gorm:"size:32"`
	Payload    []byte    `gorm:"type:jsonb"`
	Timestamp  time.Time `gorm:"index"`
}

func (auditRow) TableName() string { return "audit_records" }

// PGSink appends records to Postgres. Rows are insert-only; no update or
// delete path exists.
type PGSink struct {
	db *gorm.DB
}

// NewPGSink creates the sink and ensures the table exists.
func NewPGSink(client *conn.Client) (*PGSink, error) {
	db := client.DB()
	if db == nil {
		return nil, errors.New("audit: nil postgres client")
	}
	if err := db.AutoMigrate(&auditRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate audit table")
	}
	return &PGSink{db: db}, nil
}

// Append inserts one record.
func (s *PGSink) Append(ctx context.Context, record Record) error {
	row := auditRow{
		Seq:        record.Seq,
		RecordID:   record.RecordID,
		Kind:       string(record.Kind),
		StrategyID: record.StrategyID,
		Symbol:     record.Symbol,
		Payload:    record.Payload,
		Timestamp:  record.Timestamp,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "insert audit record")
}
