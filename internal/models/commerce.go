package models

import (
	"time"

	"gorm.io/datatypes"
)

// Account package types.
const (
	PackageFree     = "FREE"
	PackageBasic    = "BASIC"
	PackageStandard = "STANDARD"
	PackagePremium  = "PREMIUM"
)

// Purchase statuses.
const (
	PurchasePending   = "PENDING"
	PurchaseCompleted = "COMPLETED"
	PurchaseFailed    = "FAILED"
	PurchaseCancelled = "CANCELLED"
)

// Subscription statuses.
const (
	SubscriptionActive    = "ACTIVE"
	SubscriptionExpired   = "EXPIRED"
	SubscriptionCancelled = "CANCELLED"
)

// Package is a purchasable account plan.
type Package struct {
	BaseModel
	Audit
	SoftDelete

	Name         string                      `gorm:"not null" json:"name"`
	Type         string                      `gorm:"uniqueIndex;size:32;not null" json:"type"`
	Description  string                      `json:"description,omitempty"`
	Price        int64                       `gorm:"not null;default:0" json:"price"`
	Currency     string                      `gorm:"size:8;not null;default:VND" json:"currency"`
	DurationDays int                         `gorm:"not null;default:30" json:"duration_days"`
	Features     datatypes.JSONSlice[string] `json:"features,omitempty"`
}

// Purchase is a payment attempt for a package.
type Purchase struct {
	BaseModel

	UserID        string     `gorm:"size:36;not null;index" json:"user_id"`
	PackageID     string     `gorm:"size:36;not null;index" json:"package_id"`
	TransactionID string     `gorm:"uniqueIndex;size:64;not null" json:"transaction_id"`
	Method        string     `gorm:"size:16;not null;default:VNPAY" json:"method"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Currency      string     `gorm:"size:8;not null" json:"currency"`
	Status        string     `gorm:"size:16;not null;index" json:"status"`
	GatewayRef    string     `gorm:"size:64" json:"gateway_ref,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// Subscription grants a package for a period.
type Subscription struct {
	BaseModel

	UserID     string    `gorm:"size:36;not null;index" json:"user_id"`
	PackageID  string    `gorm:"size:36;not null" json:"package_id"`
	PurchaseID *string   `gorm:"size:36;uniqueIndex" json:"purchase_id,omitempty"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `gorm:"index" json:"end_date"`
	Status     string    `gorm:"size:16;not null;index" json:"status"`
	AutoRenew  bool      `gorm:"not null;default:false" json:"auto_renew"`
}
