package cashier_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

func TestPaymentGuard_RaisesForMissingPaymentMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	env.gateway.setStatus(sub.RemoteID, cashier.StatusPastDue)
	env.gateway.setIntent(sub.RemoteID, "pi_1", cashier.IntentRequiresPaymentMethod)

	err := env.cashier.Swap(ctx, sub, []string{"price_b"}, nil)
	require.Error(t, err)

	var incomplete *cashier.IncompletePaymentError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, cashier.ReasonPaymentMethodRequired, incomplete.Reason)
	assert.Equal(t, "pi_1", incomplete.Payment.ID())
	assert.True(t, incomplete.Payment.RequiresPaymentMethod())

	// The swap itself is not rolled back; the provider accepted it.
	stored, serr := env.store.SubscriptionByRemoteID(ctx, sub.RemoteID)
	require.NoError(t, serr)
	assert.Equal(t, "price_b", stored.Price)
	assert.Equal(t, cashier.StatusPastDue, stored.Status)
}

func TestPaymentGuard_ConfirmsWhenConfirmationRequired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	env.gateway.setStatus(sub.RemoteID, cashier.StatusPastDue)
	env.gateway.setIntent(sub.RemoteID, "pi_1", cashier.IntentRequiresConfirmation)

	require.NoError(t, env.cashier.Swap(ctx, sub, []string{"price_b"}, nil))

	assert.Contains(t, env.gateway.calls, "ConfirmPaymentIntent")
	intent, err := env.gateway.RetrievePaymentIntent(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, cashier.IntentSucceeded, intent.Status)
}

func TestPaymentGuard_CardDeclineIsAuthoritative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	env.gateway.setStatus(sub.RemoteID, cashier.StatusPastDue)
	env.gateway.setIntent(sub.RemoteID, "pi_1", cashier.IntentRequiresConfirmation)
	env.gateway.confirmErr = fmt.Errorf("%w: insufficient funds", cashier.ErrCardDeclined)

	err := env.cashier.Swap(ctx, sub, []string{"price_b"}, nil)
	require.Error(t, err)

	// The decline surfaces as the refreshed payment state, not as the raw
	// card error.
	var incomplete *cashier.IncompletePaymentError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, cashier.ReasonPaymentMethodRequired, incomplete.Reason)

	// Local state reflects the provider's verdict and keeps the swap.
	stored, serr := env.store.SubscriptionByRemoteID(ctx, sub.RemoteID)
	require.NoError(t, serr)
	assert.Equal(t, cashier.StatusPastDue, stored.Status)
	assert.Equal(t, "price_b", stored.Price)
}

func TestPaymentGuard_NonCardConfirmErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	env.gateway.setStatus(sub.RemoteID, cashier.StatusPastDue)
	env.gateway.setIntent(sub.RemoteID, "pi_1", cashier.IntentRequiresConfirmation)
	transport := errors.New("connection reset")
	env.gateway.confirmErr = transport

	err := env.cashier.Swap(ctx, sub, []string{"price_b"}, nil)
	assert.ErrorIs(t, err, transport)

	var incomplete *cashier.IncompletePaymentError
	assert.False(t, errors.As(err, &incomplete), "a transport failure is not a payment verdict")
}

func TestPaymentGuard_FiresActionRequiredHook(t *testing.T) {
	var hooked *cashier.Payment
	env := newTestEnv(t, func(cfg *cashier.Config) {
		cfg.Hooks = cashier.Hooks{
			PaymentActionRequired: func(ctx context.Context, payment *cashier.Payment) { hooked = payment },
		}
	})
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	env.gateway.setStatus(sub.RemoteID, cashier.StatusPastDue)
	env.gateway.setIntent(sub.RemoteID, "pi_1", cashier.IntentRequiresAction)

	err := env.cashier.Swap(ctx, sub, []string{"price_b"}, nil)
	require.Error(t, err)

	require.NotNil(t, hooked)
	assert.Equal(t, "pi_1", hooked.ID())
	assert.True(t, hooked.RequiresAction())
}

func TestPaymentGuard_IgnoreIncompletePayments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	env.gateway.setStatus(sub.RemoteID, cashier.StatusPastDue)
	env.gateway.setIntent(sub.RemoteID, "pi_1", cashier.IntentRequiresPaymentMethod)

	opts := &cashier.ChangeOptions{IgnoreIncompletePayments: true}
	require.NoError(t, env.cashier.Swap(ctx, sub, []string{"price_b"}, opts))
	assert.NotContains(t, env.gateway.calls, "LatestPaymentIntent")
}

func TestPaymentGuard_NoIntentIsFine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	// past_due without a payment intent on the latest invoice.
	env.gateway.setStatus(sub.RemoteID, cashier.StatusPastDue)

	require.NoError(t, env.cashier.Swap(ctx, sub, []string{"price_b"}, nil))
}

func TestPayment_Validate(t *testing.T) {
	gateway := newFakeGateway()

	for _, tc := range []struct {
		status cashier.IntentStatus
		reason cashier.IncompleteReason
	}{
		{cashier.IntentRequiresPaymentMethod, cashier.ReasonPaymentMethodRequired},
		{cashier.IntentRequiresAction, cashier.ReasonActionRequired},
		{cashier.IntentRequiresConfirmation, cashier.ReasonConfirmationRequired},
	} {
		payment := cashier.NewPayment(gateway, cashier.RemotePaymentIntent{ID: "pi_1", Status: tc.status})
		err := payment.Validate()
		var incomplete *cashier.IncompletePaymentError
		require.True(t, errors.As(err, &incomplete), "status %s", tc.status)
		assert.Equal(t, tc.reason, incomplete.Reason)
		assert.NotEmpty(t, incomplete.Error())
	}

	for _, status := range []cashier.IntentStatus{
		cashier.IntentSucceeded, cashier.IntentProcessing, cashier.IntentCanceled,
	} {
		payment := cashier.NewPayment(gateway, cashier.RemotePaymentIntent{ID: "pi_1", Status: status})
		assert.NoError(t, payment.Validate(), "status %s", status)
	}
}
