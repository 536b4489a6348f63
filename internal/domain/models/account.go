package models

import "time"

// User is the profile an account belongs to.
type User struct {
	ID          string
	Email       string
	DisplayName string
}

// Account is an authentication identity. It is owned by the store; the
// exchange flow only activates and reads it.
type Account struct {
	ID     string
	Active bool
	User   User
}

// PendingAccount describes an account awaiting activation through a ticket.
type PendingAccount struct {
	Email           string
	DisplayName     string
	Ticket          string
	TicketExpiresAt time.Time
}

// Activation is the result of a conditional ticket activation.
// Affected is 0 when no pending account matched the ticket.
type Activation struct {
	Affected  int64
	AccountID string
}
