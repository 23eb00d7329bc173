package stripe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

func TestRemoteSubscription(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	trialEnd := now.AddDate(0, 0, 7)
	periodEnd := now.AddDate(0, 1, 0)

	sub := &stripe.Subscription{
		ID:                "sub_1",
		Status:            stripe.SubscriptionStatusTrialing,
		Customer:          &stripe.Customer{ID: "cus_1"},
		Metadata:          map[string]string{"type": "main"},
		TrialEnd:          trialEnd.Unix(),
		CancelAtPeriodEnd: true,
		Created:           now.Unix(),
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					ID:               "si_1",
					Quantity:         3,
					CurrentPeriodEnd: periodEnd.Unix(),
					Price: &stripe.Price{
						ID:      "price_licensed",
						Product: &stripe.Product{ID: "prod_1"},
						Recurring: &stripe.PriceRecurring{
							UsageType: stripe.PriceRecurringUsageTypeLicensed,
						},
					},
				},
				{
					ID: "si_2",
					Price: &stripe.Price{
						ID:      "price_metered",
						Product: &stripe.Product{ID: "prod_2"},
						Recurring: &stripe.PriceRecurring{
							UsageType: stripe.PriceRecurringUsageTypeMetered,
						},
					},
				},
			},
		},
	}

	remote := remoteSubscription(sub)

	assert.Equal(t, "sub_1", remote.ID)
	assert.Equal(t, "cus_1", remote.CustomerID)
	assert.Equal(t, cashier.StatusTrialing, remote.Status)
	assert.Equal(t, "main", remote.Metadata["type"])
	assert.True(t, remote.CancelAtPeriodEnd)
	require.NotNil(t, remote.TrialEnd)
	assert.Equal(t, trialEnd.Unix(), remote.TrialEnd.Unix())
	require.NotNil(t, remote.CurrentPeriodEnd)
	assert.Equal(t, periodEnd.Unix(), remote.CurrentPeriodEnd.Unix())

	require.Len(t, remote.Items, 2)

	licensed := remote.Items[0]
	assert.Equal(t, "si_1", licensed.ID)
	assert.Equal(t, "price_licensed", licensed.PriceID)
	assert.Equal(t, "prod_1", licensed.ProductID)
	assert.False(t, licensed.Metered)
	require.NotNil(t, licensed.Quantity)
	assert.EqualValues(t, 3, *licensed.Quantity)

	metered := remote.Items[1]
	assert.True(t, metered.Metered)
	assert.Nil(t, metered.Quantity, "metered items carry no quantity")
}

func TestRemoteSubscription_ZeroTimestampsAreNil(t *testing.T) {
	remote := remoteSubscription(&stripe.Subscription{
		ID:     "sub_1",
		Status: stripe.SubscriptionStatusActive,
	})

	assert.Nil(t, remote.TrialEnd)
	assert.Nil(t, remote.CancelAt)
	assert.Nil(t, remote.CanceledAt)
	assert.Nil(t, remote.CurrentPeriodEnd)
	assert.Empty(t, remote.Items)
}

func TestRemoteIntent(t *testing.T) {
	intent := remoteIntent(&stripe.PaymentIntent{
		ID:           "pi_1",
		Status:       stripe.PaymentIntentStatusRequiresAction,
		Amount:       1999,
		Currency:     stripe.CurrencyUSD,
		ClientSecret: "pi_1_secret",
		Customer:     &stripe.Customer{ID: "cus_1"},
	})

	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, cashier.IntentRequiresAction, intent.Status)
	assert.EqualValues(t, 1999, intent.Amount)
	assert.Equal(t, "usd", intent.Currency)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.Equal(t, "cus_1", intent.CustomerID)
}

func TestWrapErr_CardDecline(t *testing.T) {
	card := &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}
	err := wrapErr(card)
	assert.ErrorIs(t, err, cashier.ErrCardDeclined)

	api := &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}
	err = wrapErr(api)
	assert.NotErrorIs(t, err, cashier.ErrCardDeclined)

	assert.NoError(t, wrapErr(nil))
}
