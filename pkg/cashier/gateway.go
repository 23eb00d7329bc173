package cashier

import "context"

// Gateway is the authenticated client to the remote payment provider. All
// calls must be safe to retry; adapters are expected to use idempotency keys
// or naturally idempotent operations. Card rejections during confirmation
// must be reported as errors wrapping ErrCardDeclined so the payment guard
// can distinguish them from transport failures.
type Gateway interface {
	CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*RemoteSubscription, error)
	UpdateSubscription(ctx context.Context, id string, params SubscriptionUpdateParams) (*RemoteSubscription, error)
	RetrieveSubscription(ctx context.Context, id string) (*RemoteSubscription, error)
	CancelSubscription(ctx context.Context, id string, params SubscriptionCancelParams) (*RemoteSubscription, error)

	CreateItem(ctx context.Context, params ItemCreateParams) (*RemoteItem, error)
	UpdateItem(ctx context.Context, id string, params ItemUpdateParams) (*RemoteItem, error)
	DeleteItem(ctx context.Context, id string, params ItemDeleteParams) error

	// LatestPaymentIntent returns the payment intent backing the
	// subscription's latest invoice, or nil when the invoice has none.
	LatestPaymentIntent(ctx context.Context, subscriptionID string) (*RemotePaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*RemotePaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, id string, params ConfirmParams) (*RemotePaymentIntent, error)

	CreateCustomer(ctx context.Context, params CustomerCreateParams) (*RemoteCustomer, error)
	// SetDefaultPaymentMethod attaches the payment method to the customer
	// and makes it the default for invoices.
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
}
