package models

import "time"

// RefreshToken is a long-lived opaque credential bound to one account.
type RefreshToken struct {
	Token     string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
}
