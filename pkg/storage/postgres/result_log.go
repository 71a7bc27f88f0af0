package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"coalmine/pkg/models"
)

// ResultRow is one result record. Rows are only ever inserted.
type ResultRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Identity   string    `gorm:"not null;index"`
	Parameter  int       `gorm:"not null"`
	Duration   float64   `gorm:"column:duration_seconds;not null"`
	RecordedAt time.Time `gorm:"not null;index"`
}

// TableName pins the table name.
func (ResultRow) TableName() string {
	return "result_records"
}

// BeforeCreate hook to generate UUID if not present
func (r *ResultRow) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// PostgresResultLog stores each record as a row; one INSERT is one transaction.
type PostgresResultLog struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresResultLog migrates the result table.
func NewPostgresResultLog(db *gorm.DB) (*PostgresResultLog, error) {
	if err := db.AutoMigrate(&ResultRow{}); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return &PostgresResultLog{db: db, now: time.Now}, nil
}

// Close is a no-op; the *gorm.DB belongs to the caller.
func (s *PostgresResultLog) Close() error {
	return nil
}

func (s *PostgresResultLog) Append(ctx context.Context, rec models.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	row := ResultRow{
		Identity:   rec.Identity,
		Parameter:  rec.Parameter,
		Duration:   rec.Duration,
		RecordedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert result record: %w", err)
	}
	return nil
}

func (s *PostgresResultLog) Records(ctx context.Context) ([]models.Record, error) {
	var rows []ResultRow
	if err := s.db.WithContext(ctx).Order("recorded_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list result records: %w", err)
	}
	recs := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, models.Record{
			Identity:  row.Identity,
			Parameter: row.Parameter,
			Duration:  row.Duration,
		})
	}
	return recs, nil
}
