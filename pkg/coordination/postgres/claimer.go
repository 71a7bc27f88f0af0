package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coalmine/pkg/coordination"
)

// ElectionMarker is the single-row-per-election table. The primary key on
// Name is what makes the insert a compare-and-swap.
type ElectionMarker struct {
	Name      string    `gorm:"primaryKey;type:varchar(128)"`
	Claimant  string    `gorm:"not null"`
	Message   string    `gorm:"not null"`
	ClaimedAt time.Time `gorm:"not null"`
}

// PostgresClaimer claims the election with INSERT ... ON CONFLICT DO NOTHING.
type PostgresClaimer struct {
	db   *gorm.DB
	name string
	now  func() time.Time
}

// NewPostgresClaimer migrates the marker table and returns a claimer for the
// election called name.
func NewPostgresClaimer(db *gorm.DB, name string) (*PostgresClaimer, error) {
	if err := db.AutoMigrate(&ElectionMarker{}); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return &PostgresClaimer{db: db, name: name, now: time.Now}, nil
}

// Close is a no-op; the *gorm.DB belongs to the caller.
func (c *PostgresClaimer) Close() error {
	return nil
}

func (c *PostgresClaimer) TryClaim(ctx context.Context, identity string) (bool, error) {
	at := c.now()
	marker := ElectionMarker{
		Name:      c.name,
		Claimant:  identity,
		Message:   coordination.ClaimMessage(identity, at),
		ClaimedAt: at,
	}
	result := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&marker)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert election marker: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (c *PostgresClaimer) Leader(ctx context.Context) (string, error) {
	var marker ElectionMarker
	result := c.db.WithContext(ctx).First(&marker, "name = ?", c.name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", coordination.ErrNotClaimed
		}
		return "", fmt.Errorf("failed to read election marker: %w", result.Error)
	}
	return marker.Message, nil
}
