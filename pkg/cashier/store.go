package cashier

import (
	"context"
	"time"
)

// Owner is the local billable party a subscription belongs to.
type Owner struct {
	ID               string
	RemoteCustomerID string
	Email            string
	Name             string

	// TrialEndsAt is the owner-level "generic" trial, granted before any
	// subscription exists. It is cleared when the first subscription is
	// observed.
	TrialEndsAt *time.Time
}

// OnGenericTrial reports whether the owner is on a trial that is not tied to
// any subscription.
func (o *Owner) OnGenericTrial() bool {
	return o.TrialEndsAt != nil && o.TrialEndsAt.After(time.Now())
}

// SubscriptionItem mirrors one remote line item.
type SubscriptionItem struct {
	ID             int64
	SubscriptionID int64
	RemoteID       string
	Product        string
	Price          string
	Quantity       *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store is the local persistence boundary for the subscription mirror.
// ReconcileSubscription and DeleteSubscription must each run as a single
// transaction: partial reconciliations are worse than stale mirrors because
// the next reconciliation can repair stale but not torn state.
type Store interface {
	// SubscriptionByRemoteID returns ErrSubscriptionNotFound when no local
	// record mirrors the given remote subscription id.
	SubscriptionByRemoteID(ctx context.Context, remoteID string) (*Subscription, error)

	// SubscriptionsByOwner returns the owner's subscriptions, most recently
	// created first.
	SubscriptionsByOwner(ctx context.Context, ownerID string) ([]*Subscription, error)

	// UpdateSubscription persists scalar fields of an existing record.
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// ReconcileSubscription writes the subscription (inserting it when ID is
	// zero) and makes its item set exactly match items: upsert by remote item
	// id, delete local items whose remote id is absent. Atomic.
	ReconcileSubscription(ctx context.Context, sub *Subscription, items []*SubscriptionItem) error

	// DeleteSubscription removes the record and all of its items. Atomic.
	DeleteSubscription(ctx context.Context, id int64) error

	ItemsBySubscription(ctx context.Context, subscriptionID int64) ([]*SubscriptionItem, error)

	// ItemByPrice returns ErrItemNotFound when the subscription has no item
	// with the given price.
	ItemByPrice(ctx context.Context, subscriptionID int64, price string) (*SubscriptionItem, error)

	// OwnerByRemoteCustomerID returns ErrOwnerNotFound for customers that do
	// not belong to this application.
	OwnerByRemoteCustomerID(ctx context.Context, customerID string) (*Owner, error)
	OwnerByID(ctx context.Context, id string) (*Owner, error)
	SaveOwner(ctx context.Context, owner *Owner) error
}
