package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription is a ledger entry. Rows are never deleted; status only moves
// active -> expired and ReminderSent only false -> true.
type Subscription struct {
	ID           string             `gorm:"primaryKey;size:36;not null"`
	BuyerID      int64              `gorm:"index;not null"`
	CategoryKey  string             `gorm:"size:32;index;not null"`
	PlanID       string             `gorm:"size:32;not null"`
	ChatID       int64              // access target resolved at grant time
	ApprovalID   string             `gorm:"size:64;uniqueIndex"`
	PurchasedAt  time.Time          `gorm:"not null"`
	ExpiresAt    time.Time          `gorm:"index;not null"`
	ReminderSent bool               `gorm:"not null;default:false"`
	Status       SubscriptionStatus `gorm:"size:16;index;not null"` // active, expired
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// ApprovalRecord marks an operator control as consumed.
type ApprovalRecord struct {
	ControlID  string           `gorm:"primaryKey;size:64;not null"` // <chat id>:<message id>
	Decision   ApprovalDecision `gorm:"size:16;not null"`
	BuyerID    int64            `gorm:"index;not null"`
	OperatorID int64            `gorm:"not null"`
	DecidedAt  time.Time
	CreatedAt  time.Time
}

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"` // telegram user id
	Username  string `gorm:"size:64"`
	FirstName string `gorm:"size:128"`
	Verified  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
