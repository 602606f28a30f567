package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

type SubscriptionType string

const (
	TypePostpaid  SubscriptionType = "postpaid"
	TypePrepaid   SubscriptionType = "prepaid"
	TypeUnlimited SubscriptionType = "unlimited"
)

type DeallocationCause string

const (
	CauseNormal DeallocationCause = "normal"
	CauseAbuse  DeallocationCause = "abuse"
)

type Subscription struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	SubscriptionCode string           `gorm:"uniqueIndex;not null" json:"subscription_code"`
	CustomerID       snowflake.ID     `gorm:"index;not null" json:"customer_id"`
	BranchID         snowflake.ID     `gorm:"index;not null" json:"branch_id"`
	// Number is stored E.164-normalized (+98… canonical).
	Number           string           `gorm:"index;not null" json:"number"`
	SubscriptionType SubscriptionType `gorm:"not null" json:"subscription_type"`
	// BaseBalance is the topup-reset target for the enabled monetary
	// balance. Zero for unlimited subscriptions.
	BaseBalance       money.Amount      `gorm:"not null;default:0" json:"base_balance"`
	IsAllocated       bool              `gorm:"not null;default:true" json:"is_allocated"`
	AutoPay           bool              `gorm:"not null;default:false" json:"auto_pay"`
	InterimRequest    bool              `gorm:"not null;default:false" json:"interim_request"`
	DeallocatedAt     *time.Time        `json:"deallocated_at,omitempty"`
	DeallocationCause DeallocationCause `json:"deallocation_cause,omitempty"`
	LatestPaidAt      *time.Time        `json:"latest_paid_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("subscription not found")
	ErrDuplicateCode   = errors.New("subscription code already exists")
	ErrBlacklisted     = errors.New("number is blacklisted")
	ErrDeallocated     = errors.New("subscription is deallocated")
	ErrUnlimited       = errors.New("operation not allowed for unlimited subscription")
	ErrSameType        = errors.New("subscription already has that type")
	ErrAccountExists   = errors.New("rater account already exists")
	ErrInvalidCause    = errors.New("invalid deallocation cause")
	ErrInvalidType     = errors.New("invalid subscription type")
	ErrNoActivePackage = errors.New("no active package invoice")
	ErrBaseTooLow      = errors.New("base balance cannot go below zero")
)

var OrderableFields = map[string]bool{
	"subscription_code": true,
	"number":            true,
	"subscription_type": true,
	"created_at":        true,
	"updated_at":        true,
	"deallocated_at":    true,
}
