// Package postgres provides a PostgreSQL implementation of the cashier.Store
// interface. Reconciliation and deletion run inside SQL transactions so the
// local mirror never holds a subscription whose item set is torn.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

// Config holds PostgreSQL storage configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Store implements cashier.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema when it does not exist yet. Intended for
// development and tests; production deployments should run migrations
// through their own tooling.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS billing_owners (
			id                 TEXT PRIMARY KEY,
			remote_customer_id TEXT UNIQUE,
			email              TEXT NOT NULL DEFAULT '',
			name               TEXT NOT NULL DEFAULT '',
			trial_ends_at      TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id            BIGSERIAL PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			type          TEXT NOT NULL,
			remote_id     TEXT NOT NULL UNIQUE,
			status        TEXT NOT NULL,
			price         TEXT NOT NULL DEFAULT '',
			quantity      BIGINT,
			trial_ends_at TIMESTAMPTZ,
			ends_at       TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS subscriptions_owner_idx ON subscriptions (owner_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS subscription_items (
			id              BIGSERIAL PRIMARY KEY,
			subscription_id BIGINT NOT NULL REFERENCES subscriptions (id),
			remote_id       TEXT NOT NULL,
			product         TEXT NOT NULL DEFAULT '',
			price           TEXT NOT NULL,
			quantity        BIGINT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (subscription_id, remote_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const subscriptionColumns = `id, owner_id, type, remote_id, status, price, quantity,
	trial_ends_at, ends_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*cashier.Subscription, error) {
	var sub cashier.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.OwnerID,
		&sub.Type,
		&sub.RemoteID,
		&sub.Status,
		&sub.Price,
		&sub.Quantity,
		&sub.TrialEndsAt,
		&sub.EndsAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SubscriptionByRemoteID implements cashier.Store.
func (s *Store) SubscriptionByRemoteID(ctx context.Context, remoteID string) (*cashier.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE remote_id = $1`,
		remoteID)

	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cashier.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// SubscriptionsByOwner implements cashier.Store.
func (s *Store) SubscriptionsByOwner(ctx context.Context, ownerID string) ([]*cashier.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE owner_id = $1
			ORDER BY created_at DESC, id DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*cashier.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateSubscription implements cashier.Store.
func (s *Store) UpdateSubscription(ctx context.Context, sub *cashier.Subscription) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions
			SET owner_id = $1, type = $2, status = $3, price = $4, quantity = $5,
				trial_ends_at = $6, ends_at = $7, updated_at = NOW()
			WHERE id = $8`,
		sub.OwnerID, sub.Type, sub.Status, sub.Price, sub.Quantity,
		sub.TrialEndsAt, sub.EndsAt, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cashier.ErrSubscriptionNotFound
	}
	return nil
}

// ReconcileSubscription implements cashier.Store. The subscription upsert and
// the item set rewrite share one transaction.
func (s *Store) ReconcileSubscription(ctx context.Context, sub *cashier.Subscription, items []*cashier.SubscriptionItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	if sub.ID == 0 {
		err = tx.QueryRow(ctx,
			`INSERT INTO subscriptions
					(owner_id, type, remote_id, status, price, quantity, trial_ends_at, ends_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id, created_at, updated_at`,
			sub.OwnerID, sub.Type, sub.RemoteID, sub.Status, sub.Price,
			sub.Quantity, sub.TrialEndsAt, sub.EndsAt).
			Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert subscription: %w", err)
		}
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE subscriptions
				SET owner_id = $1, type = $2, status = $3, price = $4, quantity = $5,
					trial_ends_at = $6, ends_at = $7, updated_at = NOW()
				WHERE id = $8`,
			sub.OwnerID, sub.Type, sub.Status, sub.Price, sub.Quantity,
			sub.TrialEndsAt, sub.EndsAt, sub.ID)
		if err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
	}

	remoteIDs := make([]string, 0, len(items))
	for _, item := range items {
		remoteIDs = append(remoteIDs, item.RemoteID)

		err = tx.QueryRow(ctx,
			`INSERT INTO subscription_items
					(subscription_id, remote_id, product, price, quantity)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (subscription_id, remote_id) DO UPDATE SET
					product = EXCLUDED.product,
					price = EXCLUDED.price,
					quantity = EXCLUDED.quantity,
					updated_at = NOW()
				RETURNING id, created_at, updated_at`,
			sub.ID, item.RemoteID, item.Product, item.Price, item.Quantity).
			Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert item: %w", err)
		}
		item.SubscriptionID = sub.ID
	}

	// Drop local items whose remote counterpart is gone.
	_, err = tx.Exec(ctx,
		`DELETE FROM subscription_items
			WHERE subscription_id = $1 AND remote_id <> ALL($2)`,
		sub.ID, remoteIDs)
	if err != nil {
		return fmt.Errorf("failed to prune items: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// DeleteSubscription implements cashier.Store.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	if _, err = tx.Exec(ctx,
		`DELETE FROM subscription_items WHERE subscription_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	if _, err = tx.Exec(ctx,
		`DELETE FROM subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

const itemColumns = `id, subscription_id, remote_id, product, price, quantity, created_at, updated_at`

func scanItem(row pgx.Row) (*cashier.SubscriptionItem, error) {
	var item cashier.SubscriptionItem
	err := row.Scan(
		&item.ID,
		&item.SubscriptionID,
		&item.RemoteID,
		&item.Product,
		&item.Price,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemsBySubscription implements cashier.Store.
func (s *Store) ItemsBySubscription(ctx context.Context, subscriptionID int64) ([]*cashier.SubscriptionItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM subscription_items
			WHERE subscription_id = $1
			ORDER BY id`,
		subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*cashier.SubscriptionItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// ItemByPrice implements cashier.Store.
func (s *Store) ItemByPrice(ctx context.Context, subscriptionID int64, price string) (*cashier.SubscriptionItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM subscription_items
			WHERE subscription_id = $1 AND price = $2`,
		subscriptionID, price)

	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cashier.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

const ownerColumns = `id, remote_customer_id, email, name, trial_ends_at`

func scanOwner(row pgx.Row) (*cashier.Owner, error) {
	var owner cashier.Owner
	var remoteCustomerID *string
	err := row.Scan(
		&owner.ID,
		&remoteCustomerID,
		&owner.Email,
		&owner.Name,
		&owner.TrialEndsAt,
	)
	if err != nil {
		return nil, err
	}
	if remoteCustomerID != nil {
		owner.RemoteCustomerID = *remoteCustomerID
	}
	return &owner, nil
}

// OwnerByRemoteCustomerID implements cashier.Store.
func (s *Store) OwnerByRemoteCustomerID(ctx context.Context, customerID string) (*cashier.Owner, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ownerColumns+` FROM billing_owners WHERE remote_customer_id = $1`,
		customerID)

	owner, err := scanOwner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cashier.ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return owner, nil
}

// OwnerByID implements cashier.Store.
func (s *Store) OwnerByID(ctx context.Context, id string) (*cashier.Owner, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ownerColumns+` FROM billing_owners WHERE id = $1`,
		id)

	owner, err := scanOwner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cashier.ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return owner, nil
}

// SaveOwner implements cashier.Store.
func (s *Store) SaveOwner(ctx context.Context, owner *cashier.Owner) error {
	if owner == nil || owner.ID == "" {
		return fmt.Errorf("invalid owner")
	}

	// Empty remote customer ids stay NULL so the unique index allows many
	// owners without a remote customer yet.
	var remoteCustomerID *string
	if owner.RemoteCustomerID != "" {
		remoteCustomerID = &owner.RemoteCustomerID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_owners (id, remote_customer_id, email, name, trial_ends_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				remote_customer_id = EXCLUDED.remote_customer_id,
				email = EXCLUDED.email,
				name = EXCLUDED.name,
				trial_ends_at = EXCLUDED.trial_ends_at`,
		owner.ID, remoteCustomerID, owner.Email, owner.Name, owner.TrialEndsAt)
	if err != nil {
		return fmt.Errorf("failed to save owner: %w", err)
	}
	return nil
}
