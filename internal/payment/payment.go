// Package payment is the simulated gate in front of booking. A charge must
// succeed before the reserve transaction is attempted; a failed charge
// leaves no trace in any store because nothing has been written yet. No
// external gateway is involved.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrIncompleteCard = errors.New("incomplete card details")
	ErrInvalidAmount  = errors.New("charge amount must be positive")
)

type Card struct {
	Number string
	Expiry string
	CVC    string
}

type Receipt struct {
	ID        uuid.UUID
	Amount    int
	ChargedAt time.Time
}

// Processor charges the patient before a booking is confirmed.
type Processor interface {
	Charge(ctx context.Context, amount int, card Card) (*Receipt, error)
}

type simulated struct {
	delay time.Duration
}

// NewSimulated returns a processor that validates the card fields, waits
// for the configured processing delay, and approves the charge.
func NewSimulated(delay time.Duration) Processor {
	return &simulated{delay: delay}
}

func (s *simulated) Charge(ctx context.Context, amount int, card Card) (*Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if card.Number == "" || card.Expiry == "" || card.CVC == "" {
		return nil, ErrIncompleteCard
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &Receipt{
		ID:        uuid.New(),
		Amount:    amount,
		ChargedAt: time.Now(),
	}, nil
}
