package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"github.com/wkarimi/nyumbapay/internal/retry"
)

// StripeGateway processes card payments through Stripe PaymentIntents.
// The transaction reference doubles as the Stripe idempotency key, so a
// retried charge collapses onto the original intent.
type StripeGateway struct {
	apiKey string
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(apiKey string) *StripeGateway {
	return &StripeGateway{apiKey: apiKey}
}

func (g *StripeGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	stripe.Key = g.apiKey

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		Metadata: map[string]string{
			"reference": req.Reference,
			"device_id": req.DeviceID,
		},
		Confirm: stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.SetIdempotencyKey(req.Reference)

	intent, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			switch stripeErr.Type {
			case stripe.ErrorTypeCard:
				// A decline is an answer, not an outage.
				return &ChargeResult{
					Success:        false,
					Status:         "declined",
					FailureReason:  string(stripeErr.Code),
					SecurityChecks: SecurityChecks{Passed: true},
				}, nil
			case stripe.ErrorTypeInvalidRequest:
				return nil, retry.Permanent(fmt.Errorf("stripe rejected charge: %s", stripeErr.Code))
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	result := &ChargeResult{
		Status:         string(intent.Status),
		SecurityChecks: SecurityChecks{Passed: true},
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Success = true
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresPaymentMethod:
		result.SecurityChecks.Passed = false
		result.SecurityChecks.VerificationRequired = true
	}
	if intent.LatestCharge != nil && intent.LatestCharge.ReceiptURL != "" {
		result.ReceiptURL = intent.LatestCharge.ReceiptURL
	}
	return result, nil
}
