package stripe

import (
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}

// remoteSubscription converts a Stripe subscription to the provider-neutral
// snapshot. The period end lives on the items, not the subscription; the
// latest item period end stands in for the subscription's.
func remoteSubscription(sub *stripe.Subscription) *cashier.RemoteSubscription {
	out := &cashier.RemoteSubscription{
		ID:                sub.ID,
		Status:            cashier.Status(sub.Status),
		Metadata:          sub.Metadata,
		TrialEnd:          unixTime(sub.TrialEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          unixTime(sub.CancelAt),
		CanceledAt:        unixTime(sub.CanceledAt),
		Created:           time.Unix(sub.Created, 0),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}

	if sub.Items != nil {
		var periodEnd int64
		for _, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			out.Items = append(out.Items, remoteItem(item))
			if item.CurrentPeriodEnd > periodEnd {
				periodEnd = item.CurrentPeriodEnd
			}
		}
		out.CurrentPeriodEnd = unixTime(periodEnd)
	}

	return out
}

func remoteItem(item *stripe.SubscriptionItem) cashier.RemoteItem {
	out := cashier.RemoteItem{ID: item.ID}
	if item.Price != nil {
		out.PriceID = item.Price.ID
		if item.Price.Product != nil {
			out.ProductID = item.Price.Product.ID
		}
		if item.Price.Recurring != nil {
			out.Metered = item.Price.Recurring.UsageType == stripe.PriceRecurringUsageTypeMetered
		}
	}
	if !out.Metered {
		quantity := item.Quantity
		out.Quantity = &quantity
	}
	return out
}

func remoteIntent(pi *stripe.PaymentIntent) cashier.RemotePaymentIntent {
	out := cashier.RemotePaymentIntent{
		ID:           pi.ID,
		Status:       cashier.IntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}
