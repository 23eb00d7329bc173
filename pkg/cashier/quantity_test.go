package cashier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

func TestIncrementQuantity_SinglePrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	require.NoError(t, env.cashier.IncrementQuantity(ctx, sub, 2, "", nil))

	require.NotNil(t, sub.Quantity)
	assert.EqualValues(t, 3, *sub.Quantity)

	remote, err := env.gateway.RetrieveSubscription(ctx, sub.RemoteID)
	require.NoError(t, err)
	require.NotNil(t, remote.Items[0].Quantity)
	assert.EqualValues(t, 3, *remote.Items[0].Quantity)
}

func TestDecrementQuantity_SinglePrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOwner(ctx, "user1")

	sub, err := env.cashier.NewSubscription("user1", "default", "price_a").
		Quantity(5, "").
		Create(ctx, "pm_card")
	require.NoError(t, err)

	require.NoError(t, env.cashier.DecrementQuantity(ctx, sub, 2, "", nil))

	require.NotNil(t, sub.Quantity)
	assert.EqualValues(t, 3, *sub.Quantity)
}

func TestQuantity_AmbiguousWithoutPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a", "price_b", "price_c")

	err := env.cashier.IncrementQuantity(ctx, sub, 1, "", nil)
	assert.ErrorIs(t, err, cashier.ErrAmbiguousPrice)

	err = env.cashier.UpdateQuantity(ctx, sub, 4, "", nil)
	assert.ErrorIs(t, err, cashier.ErrAmbiguousPrice)
}

func TestQuantity_PerPriceOnMultiPriceSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a", "price_b")

	require.NoError(t, env.cashier.UpdateQuantity(ctx, sub, 7, "price_b", nil))

	item, err := env.store.ItemByPrice(ctx, sub.ID, "price_b")
	require.NoError(t, err)
	require.NotNil(t, item.Quantity)
	assert.EqualValues(t, 7, *item.Quantity)

	other, err := env.store.ItemByPrice(ctx, sub.ID, "price_a")
	require.NoError(t, err)
	require.NotNil(t, other.Quantity)
	assert.EqualValues(t, 1, *other.Quantity, "sibling item stays untouched")
}

func TestQuantity_BlockedWhileIncomplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")
	sub.Status = cashier.StatusIncomplete

	err := env.cashier.IncrementQuantity(ctx, sub, 1, "", nil)
	assert.ErrorIs(t, err, cashier.ErrIncompleteSubscription)

	err = env.cashier.UpdateQuantity(ctx, sub, 2, "", nil)
	assert.ErrorIs(t, err, cashier.ErrIncompleteSubscription)
}

func TestQuantity_UnknownPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.subscribe(ctx, t, "user1", "price_a")

	err := env.cashier.UpdateQuantity(ctx, sub, 2, "price_missing", nil)
	assert.ErrorIs(t, err, cashier.ErrItemNotFound)
}
