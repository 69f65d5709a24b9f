package database

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// ErrCodeNotFound is returned when a check-in code does not exist.
var ErrCodeNotFound = errors.New("check-in code not found")

// CheckInCode is a short-lived code members redeem to check in to a club meeting.
type CheckInCode struct {
	gorm.Model
	Code      string    `gorm:"uniqueIndex;not null"`
	Club      string    `gorm:"not null;index"`
	Date      string    `gorm:"not null"`
	IssuedBy  string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	Redeemed  int       `gorm:"default:0"`
}

// CheckInDB defines the check-in code operations.
type CheckInDB interface {
	CreateCheckInCode(ctx context.Context, code CheckInCode) (*CheckInCode, error)
	GetCheckInCode(ctx context.Context, code string) (*CheckInCode, error)
	IncrementCheckInRedeemed(ctx context.Context, code string) error
	DeleteExpiredCheckInCodes(ctx context.Context, now time.Time) (int64, error)
}

// CreateCheckInCode stores a new check-in code.
func (c *Client) CreateCheckInCode(ctx context.Context, code CheckInCode) (*CheckInCode, error) {
	if err := c.db.WithContext(ctx).Create(&code).Error; err != nil {
		log.Error("failed to create check-in code", "error", err)
		return nil, err
	}
	return &code, nil
}

// GetCheckInCode looks up a code.
func (c *Client) GetCheckInCode(ctx context.Context, code string) (*CheckInCode, error) {
	var out CheckInCode
	if err := c.db.WithContext(ctx).Where("code = ?", code).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		log.Error("failed to get check-in code", "error", err)
		return nil, err
	}
	return &out, nil
}

// IncrementCheckInRedeemed bumps the redemption counter of a code.
func (c *Client) IncrementCheckInRedeemed(ctx context.Context, code string) error {
	result := c.db.WithContext(ctx).Model(&CheckInCode{}).
		Where("code = ?", code).
		Update("redeemed", gorm.Expr("redeemed + 1"))
	if result.Error != nil {
		log.Error("failed to update check-in code", "error", result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// DeleteExpiredCheckInCodes removes codes that expired before now.
func (c *Client) DeleteExpiredCheckInCodes(ctx context.Context, now time.Time) (int64, error) {
	result := c.db.WithContext(ctx).Unscoped().Where("expires_at < ?", now).Delete(&CheckInCode{})
	if result.Error != nil {
		log.Error("failed to delete expired check-in codes", "error", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
