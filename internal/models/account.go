package models

import (
	"time"

	"github.com/google/uuid"
)

// Well-known system accounts. Escrow holds all staked value; platform
// receives arbitration fees; the mint account is the issue source for
// welcome bonuses (its balance goes negative by the total ever issued).
var (
	EscrowAccountID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	PlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	MintAccountID     = uuid.MustParse("00000000-0000-0000-0000-000000000003")
)

// Account roles.
const (
	RoleParticipant = "participant"
	RoleJudge       = "judge"
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	BalanceCents int64     `json:"balance_cents"`
	IsSystem     bool      `json:"is_system"`
	CreatedAt    time.Time `json:"created_at"`
}
