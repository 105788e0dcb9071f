// Package payments talks to the card processor that holds booking payments
// and reconciles the local authorization ledger against it.
package payments

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("payment provider not configured")

type AuthorizationRequest struct {
	AmountCents           int64
	Currency              string
	DestinationAccount    string
	ApplicationFeePercent float64
	IdempotencyKey        string
	Metadata              map[string]string
}

type Authorization struct {
	PaymentIntentID string
	ClientSecret    string
}

type Reversal struct {
	ID     string
	Status string
}

type AccountStatus struct {
	OnboardingComplete bool
	ChargesEnabled     bool
	PayoutsEnabled     bool
}

// Provider is the remote payment processor. Calls are not retried by callers;
// every mutating call carries an idempotency key so a caller may repeat it.
type Provider interface {
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error)
	ReverseAuthorization(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (Reversal, error)
	GetAccountStatus(ctx context.Context, accountID string) (AccountStatus, error)
	// FindAuthorization looks up the hold created under a ledger id. found is
	// false when the processor has no such hold.
	FindAuthorization(ctx context.Context, authorizationID string) (auth Authorization, found bool, err error)
}

// Disabled is used when no processor is configured. Every account reports
// charges disabled, so priced bookings fail their payment precondition.
type Disabled struct{}

func (Disabled) CreateAuthorization(context.Context, AuthorizationRequest) (Authorization, error) {
	return Authorization{}, ErrNotConfigured
}

func (Disabled) ReverseAuthorization(context.Context, string, int64, string) (Reversal, error) {
	return Reversal{}, ErrNotConfigured
}

func (Disabled) GetAccountStatus(context.Context, string) (AccountStatus, error) {
	return AccountStatus{}, nil
}

func (Disabled) FindAuthorization(context.Context, string) (Authorization, bool, error) {
	return Authorization{}, false, ErrNotConfigured
}

// ApplicationFeeCents is the platform's cut of amountCents, rounded down.
func ApplicationFeeCents(amountCents int64, percent float64) int64 {
	if amountCents <= 0 || percent <= 0 {
		return 0
	}
	basisPoints := int64(percent*100 + 0.5)
	return amountCents * basisPoints / 10000
}
