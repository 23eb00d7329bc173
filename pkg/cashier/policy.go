package cashier

// ChangeOptions carries the per-operation policies a caller can attach to a
// mutating subscription command. The zero value means: default_incomplete
// payment behavior, create_prorations, and automatic confirmation of
// incomplete payments. A nil *ChangeOptions is valid and equals the zero
// value.
type ChangeOptions struct {
	// PaymentBehavior defaults to DefaultIncomplete when empty.
	PaymentBehavior PaymentBehavior

	// ProrationBehavior defaults to CreateProrations when empty.
	ProrationBehavior ProrationBehavior

	// Coupon and PromotionCode apply a discount to the mutation.
	Coupon        string
	PromotionCode string

	// BillingCycleAnchorUnchanged keeps the current anchor on a swap.
	BillingCycleAnchorUnchanged bool

	// IgnoreIncompletePayments disables the payment guard's automatic
	// confirmation for this operation.
	IgnoreIncompletePayments bool

	// PaymentMethod is used when the guard confirms an incomplete payment.
	PaymentMethod string
}

func (o *ChangeOptions) paymentBehavior() PaymentBehavior {
	if o == nil || o.PaymentBehavior == "" {
		return DefaultIncomplete
	}
	return o.PaymentBehavior
}

func (o *ChangeOptions) prorationBehavior() ProrationBehavior {
	if o == nil || o.ProrationBehavior == "" {
		return CreateProrations
	}
	return o.ProrationBehavior
}

// withAlwaysInvoice copies the options with proration forced to
// always_invoice, for the *AndInvoice operation variants.
func (o *ChangeOptions) withAlwaysInvoice() *ChangeOptions {
	var out ChangeOptions
	if o != nil {
		out = *o
	}
	out.ProrationBehavior = AlwaysInvoice
	return &out
}
