package cashier

import (
	"context"
	"time"
)

// Builder accumulates the desired composition of a new subscription and
// issues the remote create call. Obtain one via Cashier.NewSubscription.
type Builder struct {
	c       *Cashier
	ownerID string
	subType string

	items        []ItemParams
	trialExpires *time.Time
	skipTrial    bool
	anchor       *time.Time
	metadata     map[string]string
	opts         ChangeOptions
	daysUntilDue int64
	sendInvoice  bool

	// ambiguousQuantity defers the multiple-price error from the fluent
	// Quantity call to Create.
	ambiguousQuantity bool
}

// NewSubscription begins building a subscription of the given type for the
// owner, subscribed to the given prices with quantity 1 each.
func (c *Cashier) NewSubscription(ownerID, subType string, prices ...string) *Builder {
	b := &Builder{c: c, ownerID: ownerID, subType: subType}
	for _, price := range prices {
		b.Price(price, 1)
	}
	return b
}

// Price sets a price on the builder, replacing any previous entry for the
// same price id.
func (b *Builder) Price(price string, quantity int64) *Builder {
	return b.PriceParams(ItemParams{Price: price, Quantity: &quantity})
}

// MeteredPrice sets a usage-billed price, which carries no quantity.
func (b *Builder) MeteredPrice(price string) *Builder {
	return b.PriceParams(ItemParams{Price: price})
}

// PriceParams sets a fully specified line item on the builder.
func (b *Builder) PriceParams(item ItemParams) *Builder {
	for i := range b.items {
		if b.items[i].Price == item.Price {
			b.items[i] = item
			return b
		}
	}
	b.items = append(b.items, item)
	return b
}

// Quantity sets the quantity for the given price, or for the builder's only
// price when price is empty.
func (b *Builder) Quantity(quantity int64, price string) *Builder {
	if price == "" {
		if len(b.items) != 1 {
			b.ambiguousQuantity = true
			return b
		}
		price = b.items[0].Price
	}
	return b.Price(price, quantity)
}

// TrialDays starts the subscription with a trial of n days from now.
func (b *Builder) TrialDays(days int) *Builder {
	t := b.c.now().AddDate(0, 0, days)
	b.trialExpires = &t
	return b
}

// TrialUntil starts the subscription with a trial ending at the given date.
func (b *Builder) TrialUntil(date time.Time) *Builder {
	b.trialExpires = &date
	return b
}

// SkipTrial forces the subscription to start billing immediately, overriding
// any price-level trial defaults.
func (b *Builder) SkipTrial() *Builder {
	b.skipTrial = true
	return b
}

// AnchorBillingCycleOn anchors the billing cycle to the given date.
func (b *Builder) AnchorBillingCycleOn(date time.Time) *Builder {
	b.anchor = &date
	return b
}

// WithMetadata attaches metadata to the remote subscription.
func (b *Builder) WithMetadata(metadata map[string]string) *Builder {
	b.metadata = metadata
	return b
}

// WithCoupon applies a coupon at creation.
func (b *Builder) WithCoupon(coupon string) *Builder {
	b.opts.Coupon = coupon
	return b
}

// WithPromotionCode applies a promotion code at creation.
func (b *Builder) WithPromotionCode(code string) *Builder {
	b.opts.PromotionCode = code
	return b
}

// PaymentBehavior overrides the default_incomplete payment behavior.
func (b *Builder) PaymentBehavior(behavior PaymentBehavior) *Builder {
	b.opts.PaymentBehavior = behavior
	return b
}

// ProrationBehavior overrides the create_prorations proration behavior.
func (b *Builder) ProrationBehavior(behavior ProrationBehavior) *Builder {
	b.opts.ProrationBehavior = behavior
	return b
}

// IgnoreIncompletePayments disables automatic confirmation of an incomplete
// first payment.
func (b *Builder) IgnoreIncompletePayments() *Builder {
	b.opts.IgnoreIncompletePayments = true
	return b
}

// SendInvoice bills the subscription by emailed invoice due in the given
// number of days instead of charging automatically.
func (b *Builder) SendInvoice(daysUntilDue int64) *Builder {
	b.sendInvoice = true
	b.daysUntilDue = daysUntilDue
	return b
}

// Add creates the subscription without attaching a payment method, using the
// customer's existing default.
func (b *Builder) Add(ctx context.Context) (*Subscription, error) {
	return b.Create(ctx, "")
}

// Create resolves or creates the remote customer, optionally makes the given
// payment method its default, creates the remote subscription, mirrors it
// locally and runs the payment guard.
//
// A remote create failure surfaces unmodified and leaves no local record. A
// local write failure after a successful remote create is repaired by the
// next subscription.created webhook delivery, which creates the mirror
// idempotently by remote id.
func (b *Builder) Create(ctx context.Context, paymentMethod string) (*Subscription, error) {
	if len(b.items) == 0 {
		return nil, ErrEmptySubscription
	}
	if b.ambiguousQuantity {
		return nil, ErrAmbiguousPrice
	}

	owner, err := b.c.store.OwnerByID(ctx, b.ownerID)
	if err != nil {
		return nil, err
	}

	customerID, err := b.c.resolveCustomer(ctx, owner)
	if err != nil {
		return nil, err
	}

	if paymentMethod != "" {
		if err := b.c.gateway.SetDefaultPaymentMethod(ctx, customerID, paymentMethod); err != nil {
			return nil, err
		}
	}

	remote, err := b.c.gateway.CreateSubscription(ctx, b.buildPayload(customerID))
	if err != nil {
		return nil, err
	}

	sub, err := b.mirror(ctx, owner, remote)
	if err != nil {
		return nil, err
	}

	opts := b.opts
	opts.PaymentMethod = paymentMethod
	if err := b.c.handlePaymentFailure(ctx, sub, &opts); err != nil {
		return sub, err
	}

	return sub, nil
}

// buildPayload assembles the remote create payload from the accumulated
// state.
func (b *Builder) buildPayload(customerID string) SubscriptionCreateParams {
	metadata := make(map[string]string, len(b.metadata)+1)
	for k, v := range b.metadata {
		metadata[k] = v
	}
	// Stamping the type lets a webhook-created mirror converge to the same
	// record the command path would have written.
	if b.subType != "" {
		metadata["type"] = b.subType
	}

	params := SubscriptionCreateParams{
		CustomerID:         customerID,
		Items:              b.items,
		PaymentBehavior:    b.opts.paymentBehavior(),
		ProrationBehavior:  b.opts.prorationBehavior(),
		Coupon:             b.opts.Coupon,
		PromotionCode:      b.opts.PromotionCode,
		Metadata:           metadata,
		BillingCycleAnchor: b.anchor,
		OffSession:         true,
	}

	if b.skipTrial {
		params.TrialNow = true
	} else if b.trialExpires != nil {
		params.TrialEnd = b.trialExpires
	}

	if b.sendInvoice {
		params.SendInvoice = true
		params.DaysUntilDue = b.daysUntilDue
	}

	return params
}

// mirror finds an existing local record for the remote subscription or
// creates one together with its items.
func (b *Builder) mirror(ctx context.Context, owner *Owner, remote *RemoteSubscription) (*Subscription, error) {
	existing, err := b.c.store.SubscriptionByRemoteID(ctx, remote.ID)
	if err == nil {
		return existing, nil
	}
	if err != ErrSubscriptionNotFound {
		return nil, err
	}

	sub := &Subscription{
		OwnerID:  owner.ID,
		Type:     b.subType,
		RemoteID: remote.ID,
		Status:   remote.Status,
	}
	if !b.skipTrial {
		sub.TrialEndsAt = b.trialExpires
	}
	if item, ok := remote.SinglePrice(); ok {
		sub.Price = item.PriceID
		sub.Quantity = item.Quantity
	}

	items := itemRecords(sub, remote.Items)
	if err := b.c.store.ReconcileSubscription(ctx, sub, items); err != nil {
		return nil, err
	}

	b.c.hooks.created(ctx, sub)
	return sub, nil
}

// itemRecords converts remote line items to local mirror records.
func itemRecords(sub *Subscription, items []RemoteItem) []*SubscriptionItem {
	records := make([]*SubscriptionItem, 0, len(items))
	for _, item := range items {
		records = append(records, &SubscriptionItem{
			SubscriptionID: sub.ID,
			RemoteID:       item.ID,
			Product:        item.ProductID,
			Price:          item.PriceID,
			Quantity:       item.Quantity,
		})
	}
	return records
}
