package model

import "time"

type ConversationState string

const (
	StateIdle                  ConversationState = "idle"
	StateAwaitingPasscode      ConversationState = "awaiting_passcode"
	StateMainMenu              ConversationState = "main_menu"
	StateSelectingCategory     ConversationState = "selecting_category"
	StateSelectingPlan         ConversationState = "selecting_plan"
	StateAwaitingPaymentMethod ConversationState = "awaiting_payment_method"
	StateAwaitingProof         ConversationState = "awaiting_proof"
)

type PaymentMethod string

const (
	PaymentUPI    PaymentMethod = "upi"
	PaymentPayPal PaymentMethod = "paypal"
	PaymentBank   PaymentMethod = "bank"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentUPI, PaymentPayPal, PaymentBank:
		return true
	}
	return false
}

// PendingPurchase is the per-buyer conversation state.
type PendingPurchase struct {
	BuyerID       int64             `json:"buyer_id"`
	State         ConversationState `json:"state"`
	CategoryKey   string            `json:"category_key,omitempty"`
	PlanID        string            `json:"plan_id,omitempty"`
	PaymentMethod PaymentMethod     `json:"payment_method,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Complete reports whether the purchase carries everything an approval needs.
func (p *PendingPurchase) Complete() bool {
	return p != nil && p.BuyerID != 0 && p.CategoryKey != "" && p.PlanID != ""
}
