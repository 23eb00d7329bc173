// Package stripe adapts the Stripe API to the cashier.Gateway interface.
// Nothing outside this package imports stripe-go; the core works on
// provider-neutral snapshots.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

// latestIntentExpand reaches the payment intent behind the subscription's
// latest invoice in one retrieve call.
const latestIntentExpand = "latest_invoice.payments.data.payment.payment_intent"

// Config configures the Stripe gateway.
type Config struct {
	// APIKey is the Stripe secret key. Required.
	APIKey string

	// Logger is an optional structured logger. Defaults to NoopLogger.
	Logger cashier.Logger

	// Metrics is an optional metrics collector. Defaults to NoopMetrics.
	Metrics cashier.Metrics
}

// Gateway implements cashier.Gateway against the Stripe API.
type Gateway struct {
	client  *stripe.Client
	logger  cashier.Logger
	metrics cashier.Metrics
}

// New creates a Stripe gateway from the given configuration.
func New(cfg Config) (*Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, cashier.ErrNotConfigured
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &cashier.NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &cashier.NoopMetrics{}
	}

	return &Gateway{
		client:  stripe.NewClient(apiKey),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// observe records one outbound call. Card rejections count as success at the
// transport level; the provider answered.
func (g *Gateway) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordGatewayCall(operation, status)
	g.metrics.RecordGatewayCallDuration(operation, time.Since(start))
}

// wrapErr maps Stripe card errors onto cashier.ErrCardDeclined so the payment
// guard can tell a declined card from a transport failure.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%w: %s", cashier.ErrCardDeclined, stripeErr.Msg)
	}
	return err
}

func (g *Gateway) CreateSubscription(ctx context.Context, params cashier.SubscriptionCreateParams) (out *cashier.RemoteSubscription, err error) {
	defer func(start time.Time) { g.observe("CreateSubscription", start, err) }(time.Now())

	p := &stripe.SubscriptionCreateParams{
		Customer:        stripe.String(params.CustomerID),
		PaymentBehavior: stripe.String(string(params.PaymentBehavior)),
		OffSession:      stripe.Bool(params.OffSession),
	}
	p.AddExpand("latest_invoice")

	for _, item := range params.Items {
		itemParams := &stripe.SubscriptionCreateItemParams{
			Price: stripe.String(item.Price),
		}
		if item.Quantity != nil {
			itemParams.Quantity = stripe.Int64(*item.Quantity)
		}
		for _, rate := range item.TaxRates {
			itemParams.TaxRates = append(itemParams.TaxRates, stripe.String(rate))
		}
		p.Items = append(p.Items, itemParams)
	}

	for key, value := range params.Metadata {
		p.AddMetadata(key, value)
	}

	if params.TrialNow {
		p.TrialEndNow = stripe.Bool(true)
	} else if params.TrialEnd != nil {
		p.TrialEnd = stripe.Int64(params.TrialEnd.Unix())
	}
	if params.BillingCycleAnchor != nil {
		p.BillingCycleAnchor = stripe.Int64(params.BillingCycleAnchor.Unix())
	}
	if params.Coupon != "" || params.PromotionCode != "" {
		discount := &stripe.SubscriptionCreateDiscountParams{}
		if params.Coupon != "" {
			discount.Coupon = stripe.String(params.Coupon)
		}
		if params.PromotionCode != "" {
			discount.PromotionCode = stripe.String(params.PromotionCode)
		}
		p.Discounts = []*stripe.SubscriptionCreateDiscountParams{discount}
	}
	if params.SendInvoice {
		p.CollectionMethod = stripe.String(string(stripe.SubscriptionCollectionMethodSendInvoice))
		p.DaysUntilDue = stripe.Int64(params.DaysUntilDue)
	}

	sub, err := g.client.V1Subscriptions.Create(ctx, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	return remoteSubscription(sub), nil
}

func (g *Gateway) UpdateSubscription(ctx context.Context, id string, params cashier.SubscriptionUpdateParams) (out *cashier.RemoteSubscription, err error) {
	defer func(start time.Time) { g.observe("UpdateSubscription", start, err) }(time.Now())

	p := &stripe.SubscriptionUpdateParams{}
	if params.PaymentBehavior != "" {
		p.PaymentBehavior = stripe.String(string(params.PaymentBehavior))
	}
	if params.ProrationBehavior != "" {
		p.ProrationBehavior = stripe.String(string(params.ProrationBehavior))
	}

	for _, item := range params.Items {
		itemParams := &stripe.SubscriptionUpdateItemParams{}
		if item.RemoteID != "" {
			itemParams.ID = stripe.String(item.RemoteID)
		}
		if item.Price != "" {
			itemParams.Price = stripe.String(item.Price)
		}
		if item.Quantity != nil {
			itemParams.Quantity = stripe.Int64(*item.Quantity)
		}
		if item.Deleted {
			itemParams.Deleted = stripe.Bool(true)
		}
		if item.ClearUsage {
			itemParams.ClearUsage = stripe.Bool(true)
		}
		for _, rate := range item.TaxRates {
			itemParams.TaxRates = append(itemParams.TaxRates, stripe.String(rate))
		}
		p.Items = append(p.Items, itemParams)
	}

	if params.CancelAtPeriodEnd != nil {
		p.CancelAtPeriodEnd = stripe.Bool(*params.CancelAtPeriodEnd)
	}
	if params.CancelAt != nil {
		p.CancelAt = stripe.Int64(params.CancelAt.Unix())
	}
	if params.TrialNow {
		p.TrialEndNow = stripe.Bool(true)
	} else if params.TrialEnd != nil {
		p.TrialEnd = stripe.Int64(params.TrialEnd.Unix())
	}
	if params.BillingCycleAnchorUnchanged {
		p.BillingCycleAnchorUnchanged = stripe.Bool(true)
	}
	if params.Coupon != "" || params.PromotionCode != "" {
		discount := &stripe.SubscriptionUpdateDiscountParams{}
		if params.Coupon != "" {
			discount.Coupon = stripe.String(params.Coupon)
		}
		if params.PromotionCode != "" {
			discount.PromotionCode = stripe.String(params.PromotionCode)
		}
		p.Discounts = []*stripe.SubscriptionUpdateDiscountParams{discount}
	}

	sub, err := g.client.V1Subscriptions.Update(ctx, id, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	return remoteSubscription(sub), nil
}

func (g *Gateway) RetrieveSubscription(ctx context.Context, id string) (out *cashier.RemoteSubscription, err error) {
	defer func(start time.Time) { g.observe("RetrieveSubscription", start, err) }(time.Now())

	sub, err := g.client.V1Subscriptions.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	return remoteSubscription(sub), nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, id string, params cashier.SubscriptionCancelParams) (out *cashier.RemoteSubscription, err error) {
	defer func(start time.Time) { g.observe("CancelSubscription", start, err) }(time.Now())

	p := &stripe.SubscriptionCancelParams{}
	if params.InvoiceNow {
		p.InvoiceNow = stripe.Bool(true)
	}
	if params.Prorate {
		p.Prorate = stripe.Bool(true)
	}

	sub, err := g.client.V1Subscriptions.Cancel(ctx, id, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	return remoteSubscription(sub), nil
}

func (g *Gateway) CreateItem(ctx context.Context, params cashier.ItemCreateParams) (out *cashier.RemoteItem, err error) {
	defer func(start time.Time) { g.observe("CreateItem", start, err) }(time.Now())

	p := &stripe.SubscriptionItemCreateParams{
		Subscription: stripe.String(params.SubscriptionID),
		Price:        stripe.String(params.Price),
	}
	if params.Quantity != nil {
		p.Quantity = stripe.Int64(*params.Quantity)
	}
	if params.PaymentBehavior != "" {
		p.PaymentBehavior = stripe.String(string(params.PaymentBehavior))
	}
	if params.ProrationBehavior != "" {
		p.ProrationBehavior = stripe.String(string(params.ProrationBehavior))
	}
	for _, rate := range params.TaxRates {
		p.TaxRates = append(p.TaxRates, stripe.String(rate))
	}

	item, err := g.client.V1SubscriptionItems.Create(ctx, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	remote := remoteItem(item)
	return &remote, nil
}

func (g *Gateway) UpdateItem(ctx context.Context, id string, params cashier.ItemUpdateParams) (out *cashier.RemoteItem, err error) {
	defer func(start time.Time) { g.observe("UpdateItem", start, err) }(time.Now())

	p := &stripe.SubscriptionItemUpdateParams{}
	if params.Price != "" {
		p.Price = stripe.String(params.Price)
	}
	if params.Quantity != nil {
		p.Quantity = stripe.Int64(*params.Quantity)
	}
	if params.PaymentBehavior != "" {
		p.PaymentBehavior = stripe.String(string(params.PaymentBehavior))
	}
	if params.ProrationBehavior != "" {
		p.ProrationBehavior = stripe.String(string(params.ProrationBehavior))
	}
	for _, rate := range params.TaxRates {
		p.TaxRates = append(p.TaxRates, stripe.String(rate))
	}

	item, err := g.client.V1SubscriptionItems.Update(ctx, id, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	remote := remoteItem(item)
	return &remote, nil
}

func (g *Gateway) DeleteItem(ctx context.Context, id string, params cashier.ItemDeleteParams) (err error) {
	defer func(start time.Time) { g.observe("DeleteItem", start, err) }(time.Now())

	p := &stripe.SubscriptionItemDeleteParams{}
	if params.ClearUsage {
		p.ClearUsage = stripe.Bool(true)
	}
	if params.ProrationBehavior != "" {
		p.ProrationBehavior = stripe.String(string(params.ProrationBehavior))
	}

	_, err = g.client.V1SubscriptionItems.Delete(ctx, id, p)
	return wrapErr(err)
}

// LatestPaymentIntent retrieves the subscription with the latest invoice's
// payments expanded and returns the intent behind the most recent payment,
// or nil when the invoice carries none.
func (g *Gateway) LatestPaymentIntent(ctx context.Context, subscriptionID string) (out *cashier.RemotePaymentIntent, err error) {
	defer func(start time.Time) { g.observe("LatestPaymentIntent", start, err) }(time.Now())

	p := &stripe.SubscriptionRetrieveParams{}
	p.AddExpand(latestIntentExpand)

	sub, err := g.client.V1Subscriptions.Retrieve(ctx, subscriptionID, p)
	if err != nil {
		return nil, wrapErr(err)
	}

	if sub.LatestInvoice == nil || sub.LatestInvoice.Payments == nil {
		return nil, nil
	}
	for _, payment := range sub.LatestInvoice.Payments.Data {
		if payment == nil || payment.Payment == nil || payment.Payment.PaymentIntent == nil {
			continue
		}
		intent := remoteIntent(payment.Payment.PaymentIntent)
		return &intent, nil
	}
	return nil, nil
}

func (g *Gateway) RetrievePaymentIntent(ctx context.Context, id string) (out *cashier.RemotePaymentIntent, err error) {
	defer func(start time.Time) { g.observe("RetrievePaymentIntent", start, err) }(time.Now())

	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	intent := remoteIntent(pi)
	return &intent, nil
}

func (g *Gateway) ConfirmPaymentIntent(ctx context.Context, id string, params cashier.ConfirmParams) (out *cashier.RemotePaymentIntent, err error) {
	defer func(start time.Time) { g.observe("ConfirmPaymentIntent", start, err) }(time.Now())

	p := &stripe.PaymentIntentConfirmParams{}
	if params.PaymentMethod != "" {
		p.PaymentMethod = stripe.String(params.PaymentMethod)
	}

	pi, err := g.client.V1PaymentIntents.Confirm(ctx, id, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	intent := remoteIntent(pi)
	return &intent, nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, params cashier.CustomerCreateParams) (out *cashier.RemoteCustomer, err error) {
	defer func(start time.Time) { g.observe("CreateCustomer", start, err) }(time.Now())

	p := &stripe.CustomerCreateParams{}
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	if params.Name != "" {
		p.Name = stripe.String(params.Name)
	}
	for key, value := range params.Metadata {
		p.AddMetadata(key, value)
	}

	cust, err := g.client.V1Customers.Create(ctx, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &cashier.RemoteCustomer{
		ID:       cust.ID,
		Email:    cust.Email,
		Name:     cust.Name,
		Metadata: cust.Metadata,
	}, nil
}

// SetDefaultPaymentMethod attaches the payment method to the customer and
// makes it the default for invoices.
func (g *Gateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (err error) {
	defer func(start time.Time) { g.observe("SetDefaultPaymentMethod", start, err) }(time.Now())

	_, err = g.client.V1PaymentMethods.Attach(ctx, paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return wrapErr(err)
	}

	_, err = g.client.V1Customers.Update(ctx, customerID, &stripe.CustomerUpdateParams{
		InvoiceSettings: &stripe.CustomerUpdateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	return wrapErr(err)
}
