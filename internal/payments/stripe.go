package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Stripe authorizes booking payments as manual-capture payment intents that
// transfer to the organization's connected account.
type Stripe struct {
	api *client.API
}

// NewStripe builds a provider for secretKey. backends may be nil.
func NewStripe(secretKey string, backends *stripe.Backends) *Stripe {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Stripe{api: api}
}

func (s *Stripe) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if req.AmountCents <= 0 {
		return Authorization{}, fmt.Errorf("authorization amount must be positive")
	}
	if strings.TrimSpace(req.DestinationAccount) == "" {
		return Authorization{}, fmt.Errorf("destination account is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		},
	}
	if fee := ApplicationFeeCents(req.AmountCents, req.ApplicationFeePercent); fee > 0 {
		params.ApplicationFeeAmount = stripe.Int64(fee)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Authorization{}, fmt.Errorf("create payment intent: %w", err)
	}
	return Authorization{PaymentIntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// ReverseAuthorization returns amountCents to the payer. An uncaptured intent
// is cancelled when the whole amount goes back and captured for the remainder
// otherwise; a captured intent is refunded.
func (s *Stripe) ReverseAuthorization(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (Reversal, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	intent, err := s.api.PaymentIntents.Get(paymentIntentID, getParams)
	if err != nil {
		return Reversal{}, fmt.Errorf("get payment intent: %w", err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(paymentIntentID),
			Amount:        stripe.Int64(amountCents),
		}
		params.Context = ctx
		setIdempotencyKey(&params.Params, idempotencyKey)
		refund, err := s.api.Refunds.New(params)
		if err != nil {
			return Reversal{}, fmt.Errorf("refund payment intent: %w", err)
		}
		return Reversal{ID: refund.ID, Status: string(refund.Status)}, nil

	case stripe.PaymentIntentStatusCanceled:
		return Reversal{ID: intent.ID, Status: string(intent.Status)}, nil

	case stripe.PaymentIntentStatusRequiresCapture:
		if amountCents < intent.Amount {
			params := &stripe.PaymentIntentCaptureParams{
				AmountToCapture: stripe.Int64(intent.Amount - amountCents),
			}
			params.Context = ctx
			setIdempotencyKey(&params.Params, idempotencyKey)
			captured, err := s.api.PaymentIntents.Capture(paymentIntentID, params)
			if err != nil {
				return Reversal{}, fmt.Errorf("capture remainder: %w", err)
			}
			return Reversal{ID: captured.ID, Status: string(captured.Status)}, nil
		}
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	setIdempotencyKey(&params.Params, idempotencyKey)
	cancelled, err := s.api.PaymentIntents.Cancel(paymentIntentID, params)
	if err != nil {
		return Reversal{}, fmt.Errorf("cancel payment intent: %w", err)
	}
	return Reversal{ID: cancelled.ID, Status: string(cancelled.Status)}, nil
}

func (s *Stripe) GetAccountStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	account, err := s.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return AccountStatus{}, fmt.Errorf("get account: %w", err)
	}
	return AccountStatus{
		OnboardingComplete: account.DetailsSubmitted,
		ChargesEnabled:     account.ChargesEnabled,
		PayoutsEnabled:     account.PayoutsEnabled,
	}, nil
}

// FindAuthorization searches for the intent tagged with the ledger id in its
// authorization_id metadata.
func (s *Stripe) FindAuthorization(ctx context.Context, authorizationID string) (Authorization, bool, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['authorization_id']:'%s'", strings.ReplaceAll(authorizationID, "'", ""))
	params.Context = ctx

	iter := s.api.PaymentIntents.Search(params)
	if iter.Next() {
		intent := iter.PaymentIntent()
		return Authorization{PaymentIntentID: intent.ID, ClientSecret: intent.ClientSecret}, true, nil
	}
	if err := iter.Err(); err != nil {
		return Authorization{}, false, fmt.Errorf("search payment intents: %w", err)
	}
	return Authorization{}, false, nil
}

func setIdempotencyKey(params *stripe.Params, key string) {
	if key != "" {
		params.SetIdempotencyKey(key)
	}
}
