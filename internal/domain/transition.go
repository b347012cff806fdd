package domain

import "time"

// CreditDelta is a signed balance adjustment that must not drive the balance
// below zero.
type CreditDelta struct {
	User   UserID
	Amount int64
}

// Transfer pays To. With From set it moves up to Amount out of From's balance,
// clamped to what From holds so neither side goes negative. With From empty
// the payment is funded externally and To receives Amount in full.
type Transfer struct {
	From   UserID
	To     UserID
	Amount int64
}

// Transition is a status change and its credit side effects, applied as one
// unit by the store. It only applies while the session is still in From.
type Transition struct {
	SessionID SessionID
	From      Status
	To        Status
	EndedAt   *time.Time
	Credits   []CreditDelta
	Transfer  *Transfer
}
