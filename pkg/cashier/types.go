// Package cashier mirrors recurring billing subscriptions that live in a
// remote payment provider. The provider is the source of truth; the local
// mirror exists for fast reads and referential integrity with application
// data. Every mutation fetches fresh remote state before writing locally, so
// the command path and the webhook path converge to the same record no matter
// how their writes interleave.
package cashier

import "time"

// Status mirrors the remote provider's subscription status verbatim.
type Status string

const (
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
	StatusPaused            Status = "paused"
)

// PaymentBehavior controls how the provider treats a mutation whose payment
// does not immediately succeed.
type PaymentBehavior string

const (
	DefaultIncomplete   PaymentBehavior = "default_incomplete"
	AllowIncomplete     PaymentBehavior = "allow_incomplete"
	PendingIfIncomplete PaymentBehavior = "pending_if_incomplete"
	ErrorIfIncomplete   PaymentBehavior = "error_if_incomplete"
)

// ProrationBehavior controls mid-cycle credit/charge handling on plan changes.
type ProrationBehavior string

const (
	NoProration      ProrationBehavior = "none"
	CreateProrations ProrationBehavior = "create_prorations"
	AlwaysInvoice    ProrationBehavior = "always_invoice"
)

// IntentStatus mirrors the remote payment intent status.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// RemoteSubscription is a provider-neutral snapshot of the remote
// subscription object.
type RemoteSubscription struct {
	ID                string
	CustomerID        string
	Status            Status
	Items             []RemoteItem
	Metadata          map[string]string
	TrialEnd          *time.Time
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
	CanceledAt        *time.Time
	CurrentPeriodEnd  *time.Time
	Created           time.Time
}

// SinglePrice reports whether the remote subscription has exactly one line
// item, and returns it when it does.
func (r *RemoteSubscription) SinglePrice() (RemoteItem, bool) {
	if len(r.Items) != 1 {
		return RemoteItem{}, false
	}
	return r.Items[0], true
}

// RemoteItem is one line item of a remote subscription.
type RemoteItem struct {
	ID        string
	PriceID   string
	ProductID string
	Quantity  *int64
	Metered   bool
}

// RemotePaymentIntent is a provider-neutral snapshot of a payment intent.
type RemotePaymentIntent struct {
	ID           string
	Status       IntentStatus
	Amount       int64
	Currency     string
	ClientSecret string
	CustomerID   string
}

// RemoteCustomer is the provider-side billing customer.
type RemoteCustomer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

// ItemParams describes one desired line item in a create or update call.
// During an update, RemoteID targets an existing remote item and Deleted
// removes it; ClearUsage additionally drops pending usage on metered prices.
type ItemParams struct {
	RemoteID   string
	Price      string
	Quantity   *int64
	TaxRates   []string
	Deleted    bool
	ClearUsage bool
}

// SubscriptionCreateParams is the payload for creating a remote subscription.
type SubscriptionCreateParams struct {
	CustomerID         string
	Items              []ItemParams
	PaymentBehavior    PaymentBehavior
	ProrationBehavior  ProrationBehavior
	Coupon             string
	PromotionCode      string
	Metadata           map[string]string
	TrialEnd           *time.Time
	TrialNow           bool
	BillingCycleAnchor *time.Time
	OffSession         bool
	DaysUntilDue       int64
	SendInvoice        bool
}

// SubscriptionUpdateParams is the payload for updating a remote subscription.
// A nil TrialEnd with TrialNow false leaves the trial untouched.
type SubscriptionUpdateParams struct {
	Items                       []ItemParams
	PaymentBehavior             PaymentBehavior
	ProrationBehavior           ProrationBehavior
	Coupon                      string
	PromotionCode               string
	CancelAtPeriodEnd           *bool
	CancelAt                    *time.Time
	TrialEnd                    *time.Time
	TrialNow                    bool
	BillingCycleAnchorUnchanged bool
}

// SubscriptionCancelParams is the payload for an immediate remote cancel.
type SubscriptionCancelParams struct {
	InvoiceNow bool
	Prorate    bool
}

// ItemCreateParams adds one line item to an existing remote subscription.
type ItemCreateParams struct {
	SubscriptionID    string
	Price             string
	Quantity          *int64
	TaxRates          []string
	PaymentBehavior   PaymentBehavior
	ProrationBehavior ProrationBehavior
}

// ItemUpdateParams mutates one remote line item.
type ItemUpdateParams struct {
	Price             string
	Quantity          *int64
	TaxRates          []string
	PaymentBehavior   PaymentBehavior
	ProrationBehavior ProrationBehavior
}

// ItemDeleteParams removes one remote line item.
type ItemDeleteParams struct {
	ClearUsage        bool
	ProrationBehavior ProrationBehavior
}

// CustomerCreateParams creates the provider-side customer for an owner.
type CustomerCreateParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// ConfirmParams configures a payment intent confirmation attempt.
type ConfirmParams struct {
	PaymentMethod string
}
