// Package memory provides an in-memory implementation of the cashier.Store
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

// Store implements cashier.Store using in-memory maps.
type Store struct {
	mu sync.RWMutex

	subs   map[int64]*cashier.Subscription
	items  map[int64]*cashier.SubscriptionItem
	owners map[string]*cashier.Owner

	nextSubID  int64
	nextItemID int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		subs:   make(map[int64]*cashier.Subscription),
		items:  make(map[int64]*cashier.SubscriptionItem),
		owners: make(map[string]*cashier.Owner),
	}
}

// SubscriptionByRemoteID implements cashier.Store.
func (s *Store) SubscriptionByRemoteID(ctx context.Context, remoteID string) (*cashier.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.RemoteID == remoteID {
			subCopy := *sub
			return &subCopy, nil
		}
	}
	return nil, cashier.ErrSubscriptionNotFound
}

// SubscriptionsByOwner implements cashier.Store.
func (s *Store) SubscriptionsByOwner(ctx context.Context, ownerID string) ([]*cashier.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*cashier.Subscription, 0)
	for _, sub := range s.subs {
		if sub.OwnerID == ownerID {
			subCopy := *sub
			out = append(out, &subCopy)
		}
	}

	// Most recently created first; id breaks ties for records created in the
	// same instant.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	return out, nil
}

// UpdateSubscription implements cashier.Store.
func (s *Store) UpdateSubscription(ctx context.Context, sub *cashier.Subscription) error {
	if sub == nil || sub.ID == 0 {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subs[sub.ID]
	if !ok {
		return cashier.ErrSubscriptionNotFound
	}

	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now()
	subCopy := *sub
	s.subs[sub.ID] = &subCopy
	return nil
}

// ReconcileSubscription implements cashier.Store. The whole write happens
// under one lock, so concurrent readers never observe a half-rewritten item
// set.
func (s *Store) ReconcileSubscription(ctx context.Context, sub *cashier.Subscription, items []*cashier.SubscriptionItem) error {
	if sub == nil {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if sub.ID == 0 {
		s.nextSubID++
		sub.ID = s.nextSubID
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	subCopy := *sub
	s.subs[sub.ID] = &subCopy

	keep := make(map[string]bool, len(items))
	for _, item := range items {
		keep[item.RemoteID] = true
	}

	byRemote := make(map[string]int64)
	for id, item := range s.items {
		if item.SubscriptionID == sub.ID {
			byRemote[item.RemoteID] = id
		}
	}

	// Upsert by remote item id.
	for _, item := range items {
		item.SubscriptionID = sub.ID
		if id, ok := byRemote[item.RemoteID]; ok {
			item.ID = id
			item.CreatedAt = s.items[id].CreatedAt
		} else {
			s.nextItemID++
			item.ID = s.nextItemID
			item.CreatedAt = now
		}
		item.UpdatedAt = now
		itemCopy := *item
		s.items[item.ID] = &itemCopy
	}

	// Delete items whose remote id is no longer present.
	for remoteID, id := range byRemote {
		if !keep[remoteID] {
			delete(s.items, id)
		}
	}

	return nil
}

// DeleteSubscription implements cashier.Store.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[id]; !ok {
		return cashier.ErrSubscriptionNotFound
	}
	delete(s.subs, id)

	for itemID, item := range s.items {
		if item.SubscriptionID == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

// ItemsBySubscription implements cashier.Store.
func (s *Store) ItemsBySubscription(ctx context.Context, subscriptionID int64) ([]*cashier.SubscriptionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*cashier.SubscriptionItem, 0)
	for _, item := range s.items {
		if item.SubscriptionID == subscriptionID {
			itemCopy := *item
			out = append(out, &itemCopy)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ItemByPrice implements cashier.Store.
func (s *Store) ItemByPrice(ctx context.Context, subscriptionID int64, price string) (*cashier.SubscriptionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.SubscriptionID == subscriptionID && item.Price == price {
			itemCopy := *item
			return &itemCopy, nil
		}
	}
	return nil, cashier.ErrItemNotFound
}

// OwnerByRemoteCustomerID implements cashier.Store.
func (s *Store) OwnerByRemoteCustomerID(ctx context.Context, customerID string) (*cashier.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, owner := range s.owners {
		if owner.RemoteCustomerID == customerID {
			ownerCopy := *owner
			return &ownerCopy, nil
		}
	}
	return nil, cashier.ErrOwnerNotFound
}

// OwnerByID implements cashier.Store.
func (s *Store) OwnerByID(ctx context.Context, id string) (*cashier.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[id]
	if !ok {
		return nil, cashier.ErrOwnerNotFound
	}
	ownerCopy := *owner
	return &ownerCopy, nil
}

// SaveOwner implements cashier.Store.
func (s *Store) SaveOwner(ctx context.Context, owner *cashier.Owner) error {
	if owner == nil || owner.ID == "" {
		return fmt.Errorf("invalid owner")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ownerCopy := *owner
	s.owners[owner.ID] = &ownerCopy
	return nil
}

// Deduper implements cashier.EventDeduper with an in-memory set. The set
// grows without bound, so it suits tests and development; production should
// use the redis deduper, which expires entries.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduper creates a new in-memory event deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Seen implements cashier.EventDeduper.
func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[eventID]; ok {
		return true, nil
	}
	d.seen[eventID] = struct{}{}
	return false, nil
}

// Forget implements cashier.EventDeduper.
func (d *Deduper) Forget(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, eventID)
	return nil
}
