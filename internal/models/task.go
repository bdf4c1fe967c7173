package models

import (
	"time"

	"github.com/google/uuid"
)

// Task families. Exchange and help tasks live in separate tables with
// independent id sequences; family + id identifies a task globally.
const (
	FamilyExchange = "exchange"
	FamilyHelp     = "help"
)

// Exchange task states. There is no "none" constant: an id that was never
// created has no row, which is how "no such task" is distinguished from any
// real state.
const (
	ExchangePending   = "pending"
	ExchangeMatched   = "matched"
	ExchangeDelivery  = "delivery"
	ExchangeCompleted = "completed"
	ExchangeCancelled = "cancelled"
	ExchangeDisputed  = "disputed"
)

// Help task states.
const (
	HelpOpen      = "open"
	HelpAccepted  = "accepted"
	HelpCompleted = "completed"
	HelpCancelled = "cancelled"
)

// Dispute outcomes accepted by arbitration.
const (
	OutcomeCreator = "creator"
	OutcomePartner = "partner"
	OutcomeSplit   = "split"
)

// ExchangeTask is a two-party gift exchange. Both parties stake the same
// fixed amount; StakeCents is the pooled total actually transferred in.
// Partner is nil until someone proposes a match and immutable once set.
type ExchangeTask struct {
	ID               int64      `json:"id"`
	Creator          uuid.UUID  `json:"creator"`
	Partner          *uuid.UUID `json:"partner,omitempty"`
	City             string     `json:"city"`
	DeliveryInfo     string     `json:"delivery_info"` // encrypted blob, opaque to the server
	WishList         []string   `json:"wish_list"`
	StakeCents       int64      `json:"stake_cents"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	PendingExpiry    time.Time  `json:"pending_expiry"`
	DeliveryDeadline *time.Time `json:"delivery_deadline,omitempty"`
	ConfirmDeadline  *time.Time `json:"confirm_deadline,omitempty"`
	CreatorDelivered bool       `json:"creator_delivered"`
	PartnerDelivered bool       `json:"partner_delivered"`
	CreatorConfirmed bool       `json:"creator_confirmed"`
	PartnerConfirmed bool       `json:"partner_confirmed"`
	TrackingRefs     []string   `json:"tracking_refs,omitempty"`
}

// HelpTask is a single-helper request. Custody is requester-funded only.
// Expiry is the accept deadline while open; once accepted it is re-armed to
// the auto-complete deadline.
type HelpTask struct {
	ID         int64      `json:"id"`
	Requester  uuid.UUID  `json:"requester"`
	Helper     *uuid.UUID `json:"helper,omitempty"`
	TaskType   string     `json:"task_type"`
	Details    string     `json:"details"`
	StakeCents int64      `json:"stake_cents"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	Expiry     time.Time  `json:"expiry"`
}

// IsParticipant reports whether party is the creator or the matched partner.
func (t *ExchangeTask) IsParticipant(party uuid.UUID) bool {
	if party == t.Creator {
		return true
	}
	return t.Partner != nil && *t.Partner == party
}
