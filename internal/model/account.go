package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ReferralCap is the number of redemptions a single link allows before it
// becomes exhausted.
const ReferralCap = 5

type Account struct {
	ID             uuid.UUID
	Username       string
	PasswordHash   string
	Balance        int64
	Role           string
	ReferralLink   *string
	ReferralCount  int
	ReferralExpiry *time.Time
	CreatedAt      time.Time

	UsageHistory []ReferralUsage
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ReferralUsage is one redemption recorded against the code that was
// active at the time. Entries survive link reissue and expiry.
type ReferralUsage struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	ReferralLink string
	UsedAt       time.Time
	RedeemedBy   []string
}
