package cashier

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when required collaborators are missing
	ErrNotConfigured = errors.New("cashier not configured")

	// ErrEmptySubscription is returned when a subscription is created without prices
	ErrEmptySubscription = errors.New("at least one price is required when starting a subscription")

	// ErrIncompleteSubscription is returned when mutating a subscription whose payment never completed
	ErrIncompleteSubscription = errors.New("subscription cannot be updated because its payment is incomplete")

	// ErrAmbiguousPrice is returned when an operation needs a price argument
	// because the subscription has multiple prices
	ErrAmbiguousPrice = errors.New("price argument required for a subscription with multiple prices")

	// ErrLastPrice is returned when removing the final price from a subscription
	ErrLastPrice = errors.New("cannot remove the last price from a subscription")

	// ErrDuplicatePrice is returned when adding a price that is already attached
	ErrDuplicatePrice = errors.New("price is already attached to the subscription")

	// ErrNotOnGracePeriod is returned when resuming a subscription outside its grace period
	ErrNotOnGracePeriod = errors.New("subscription is not within its grace period")

	// ErrTrialDateInPast is returned when extending a trial to a date that already passed
	ErrTrialDateInPast = errors.New("extending a trial requires a date in the future")

	// ErrSubscriptionNotFound is returned when no local subscription matches
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrItemNotFound is returned when no local subscription item matches
	ErrItemNotFound = errors.New("subscription item not found")

	// ErrOwnerNotFound is returned when no local owner matches a remote customer
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrCardDeclined is wrapped by gateway adapters when the provider rejects a card.
	// The payment guard retries confirmation failures of this kind exactly once.
	ErrCardDeclined = errors.New("card declined")
)

// IncompleteReason describes why a payment could not complete.
type IncompleteReason string

const (
	// ReasonPaymentMethodRequired means the payment needs a valid payment method.
	ReasonPaymentMethodRequired IncompleteReason = "requires_payment_method"

	// ReasonActionRequired means the customer must complete an extra step,
	// such as a 3D Secure challenge.
	ReasonActionRequired IncompleteReason = "requires_action"

	// ReasonConfirmationRequired means the payment must be confirmed before
	// it can complete.
	ReasonConfirmationRequired IncompleteReason = "requires_confirmation"
)

// IncompletePaymentError is raised when a subscription's latest payment is in
// a non-terminal state. It carries the payment so callers can decide the
// follow-up: collect a new method, redirect for authentication, or confirm.
type IncompletePaymentError struct {
	Payment *Payment
	Reason  IncompleteReason
}

func (e *IncompletePaymentError) Error() string {
	switch e.Reason {
	case ReasonPaymentMethodRequired:
		return "the payment attempt failed because of an invalid payment method"
	case ReasonActionRequired:
		return "the payment attempt failed because additional action is required before it can be completed"
	case ReasonConfirmationRequired:
		return "the payment attempt failed because it needs to be confirmed before it can be completed"
	default:
		return fmt.Sprintf("the payment attempt failed: %s", e.Reason)
	}
}

func paymentMethodRequired(p *Payment) *IncompletePaymentError {
	return &IncompletePaymentError{Payment: p, Reason: ReasonPaymentMethodRequired}
}

func actionRequired(p *Payment) *IncompletePaymentError {
	return &IncompletePaymentError{Payment: p, Reason: ReasonActionRequired}
}

func confirmationRequired(p *Payment) *IncompletePaymentError {
	return &IncompletePaymentError{Payment: p, Reason: ReasonConfirmationRequired}
}
