package cashier

import "context"

// Payment wraps a remote payment intent with the predicates the payment
// guard and callers need to decide the follow-up UX.
type Payment struct {
	gateway Gateway
	intent  RemotePaymentIntent
}

// NewPayment wraps a remote payment intent.
func NewPayment(gateway Gateway, intent RemotePaymentIntent) *Payment {
	return &Payment{gateway: gateway, intent: intent}
}

// ID returns the remote payment intent id.
func (p *Payment) ID() string { return p.intent.ID }

// Status returns the remote payment intent status.
func (p *Payment) Status() IntentStatus { return p.intent.Status }

// Amount returns the amount in the smallest currency unit.
func (p *Payment) Amount() int64 { return p.intent.Amount }

// Currency returns the ISO currency code.
func (p *Payment) Currency() string { return p.intent.Currency }

// ClientSecret returns the secret the frontend needs to complete the payment.
func (p *Payment) ClientSecret() string { return p.intent.ClientSecret }

// RequiresPaymentMethod reports whether the payment needs a valid method.
func (p *Payment) RequiresPaymentMethod() bool {
	return p.intent.Status == IntentRequiresPaymentMethod
}

// RequiresAction reports whether the payment needs an extra customer step
// like 3D Secure.
func (p *Payment) RequiresAction() bool {
	return p.intent.Status == IntentRequiresAction
}

// RequiresConfirmation reports whether the payment needs to be confirmed.
func (p *Payment) RequiresConfirmation() bool {
	return p.intent.Status == IntentRequiresConfirmation
}

// Succeeded reports whether the payment completed.
func (p *Payment) Succeeded() bool { return p.intent.Status == IntentSucceeded }

// Processing reports whether the payment is in flight.
func (p *Payment) Processing() bool { return p.intent.Status == IntentProcessing }

// Canceled reports whether the payment was canceled.
func (p *Payment) Canceled() bool { return p.intent.Status == IntentCanceled }

// Validate returns a typed IncompletePaymentError when the payment is stuck
// in a state that needs customer or caller action, nil otherwise.
func (p *Payment) Validate() error {
	switch {
	case p.RequiresPaymentMethod():
		return paymentMethodRequired(p)
	case p.RequiresAction():
		return actionRequired(p)
	case p.RequiresConfirmation():
		return confirmationRequired(p)
	}
	return nil
}

// Confirm attempts to confirm the payment with the given method (optional)
// and refreshes the wrapped intent on success.
func (p *Payment) Confirm(ctx context.Context, paymentMethod string) error {
	intent, err := p.gateway.ConfirmPaymentIntent(ctx, p.intent.ID, ConfirmParams{
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		return err
	}
	p.intent = *intent
	return nil
}

// Refresh refetches the authoritative intent from the provider.
func (p *Payment) Refresh(ctx context.Context) error {
	intent, err := p.gateway.RetrievePaymentIntent(ctx, p.intent.ID)
	if err != nil {
		return err
	}
	p.intent = *intent
	return nil
}
