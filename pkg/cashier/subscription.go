package cashier

import "time"

// Subscription is the local mirror of a remote subscription. Price and
// Quantity are populated only while the subscription has exactly one line
// item; with multiple items both are empty and per-item state lives on the
// SubscriptionItem records.
type Subscription struct {
	ID       int64
	OwnerID  string
	Type     string
	RemoteID string
	Status   Status
	Price    string
	Quantity *int64

	TrialEndsAt *time.Time
	EndsAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Policy configures which provider statuses deactivate a subscription.
// The zero value treats incomplete and past_due subscriptions as active,
// matching the provider's default behavior.
type Policy struct {
	DeactivateIncomplete bool
	DeactivatePastDue    bool
}

// HasMultiplePrices reports whether the subscription has more than one price.
func (s *Subscription) HasMultiplePrices() bool {
	return s.Price == ""
}

// HasSinglePrice reports whether the subscription has exactly one price.
func (s *Subscription) HasSinglePrice() bool {
	return !s.HasMultiplePrices()
}

// Incomplete reports whether the subscription never successfully started.
func (s *Subscription) Incomplete() bool {
	return s.Status == StatusIncomplete
}

// PastDue reports whether the latest renewal payment failed.
func (s *Subscription) PastDue() bool {
	return s.Status == StatusPastDue
}

// HasIncompletePayment reports whether a payment is pending customer action.
func (s *Subscription) HasIncompletePayment() bool {
	return s.Incomplete() || s.PastDue()
}

// OnTrial reports whether the subscription is within its trial period.
func (s *Subscription) OnTrial() bool {
	return s.OnTrialAt(time.Now())
}

// OnTrialAt is OnTrial evaluated at an explicit instant.
func (s *Subscription) OnTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

// HasExpiredTrial reports whether a trial was set and has passed.
func (s *Subscription) HasExpiredTrial() bool {
	return s.HasExpiredTrialAt(time.Now())
}

// HasExpiredTrialAt is HasExpiredTrial evaluated at an explicit instant.
func (s *Subscription) HasExpiredTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.Before(now)
}

// Canceled reports whether cancellation has been requested, whether or not
// the grace period has run out.
func (s *Subscription) Canceled() bool {
	return s.EndsAt != nil
}

// OnGracePeriod reports whether a canceled subscription is still usable.
func (s *Subscription) OnGracePeriod() bool {
	return s.OnGracePeriodAt(time.Now())
}

// OnGracePeriodAt is OnGracePeriod evaluated at an explicit instant.
func (s *Subscription) OnGracePeriodAt(now time.Time) bool {
	return s.EndsAt != nil && s.EndsAt.After(now)
}

// Ended reports whether the subscription is canceled and past its grace
// period.
func (s *Subscription) Ended() bool {
	return s.EndedAt(time.Now())
}

// EndedAt is Ended evaluated at an explicit instant.
func (s *Subscription) EndedAt(now time.Time) bool {
	return s.Canceled() && !s.OnGracePeriodAt(now)
}

// Recurring reports whether the subscription is billing normally: past any
// trial and not canceled.
func (s *Subscription) Recurring() bool {
	return s.RecurringAt(time.Now())
}

// RecurringAt is Recurring evaluated at an explicit instant.
func (s *Subscription) RecurringAt(now time.Time) bool {
	return !s.OnTrialAt(now) && !s.Canceled()
}

// Active reports whether the subscription is live under the zero Policy.
func (s *Subscription) Active() bool {
	return s.ActiveAt(time.Now(), Policy{})
}

// ActiveAt reports whether the subscription is live at the given instant
// under the given policy.
func (s *Subscription) ActiveAt(now time.Time, p Policy) bool {
	if s.EndedAt(now) {
		return false
	}
	if p.DeactivateIncomplete && s.Status == StatusIncomplete {
		return false
	}
	if p.DeactivatePastDue && s.Status == StatusPastDue {
		return false
	}
	return s.Status != StatusUnpaid
}

// Valid reports whether the owner may use the subscription: it is active, on
// trial, or within its grace period.
func (s *Subscription) Valid() bool {
	return s.ValidAt(time.Now(), Policy{})
}

// ValidAt is Valid evaluated at an explicit instant under the given policy.
func (s *Subscription) ValidAt(now time.Time, p Policy) bool {
	return s.ActiveAt(now, p) || s.OnTrialAt(now) || s.OnGracePeriodAt(now)
}

// guardAgainstIncomplete blocks quantity and price changes on a subscription
// that never successfully started, so failed state cannot compound.
func (s *Subscription) guardAgainstIncomplete() error {
	if s.Incomplete() {
		return ErrIncompleteSubscription
	}
	return nil
}

// guardAgainstMultiplePrices blocks single-price operations when the price
// they should apply to is ambiguous.
func (s *Subscription) guardAgainstMultiplePrices() error {
	if s.HasMultiplePrices() {
		return ErrAmbiguousPrice
	}
	return nil
}
