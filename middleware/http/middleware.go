// Package http provides HTTP middleware that gates routes on an active
// subscription.
package http

import (
	"context"
	"net/http"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

// OwnerIDExtractor extracts the billable owner's id from an HTTP request.
// Return empty string if the caller is not authenticated.
type OwnerIDExtractor func(r *http.Request) string

// Config holds middleware configuration.
type Config struct {
	// Cashier is the subscription mirror (required)
	Cashier *cashier.Cashier

	// GetOwnerID extracts the owner id from the request (required)
	GetOwnerID OwnerIDExtractor

	// Type is the subscription type to require. Default: "default"
	Type string

	// Price optionally narrows the check to a specific price id
	Price string

	// OnNotSubscribed is called when the owner has no usable subscription.
	// If nil, returns 402 Payment Required
	OnNotSubscribed func(w http.ResponseWriter, r *http.Request)

	// OnUnauthorized is called when the caller is not authenticated.
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs.
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that admits only owners holding a
// usable subscription of the configured type.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Type == "" {
		config.Type = "default"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := config.GetOwnerID(r)
			if ownerID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			subscribed, err := config.Cashier.Subscribed(r.Context(), ownerID, config.Type, config.Price)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}
			if !subscribed {
				if config.OnNotSubscribed != nil {
					config.OnNotSubscribed(w, r)
				} else {
					http.Error(w, "Subscription required", http.StatusPaymentRequired)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware that gates a HandlerFunc.
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// ContextKey is a type for context keys.
type ContextKey string

// OwnerIDKey is the context key for the owner id.
const OwnerIDKey ContextKey = "cashier:ownerID"

// FromContext returns an OwnerIDExtractor that gets the owner id from the
// request context.
func FromContext(key ContextKey) OwnerIDExtractor {
	return func(r *http.Request) string {
		if ownerID, ok := r.Context().Value(key).(string); ok {
			return ownerID
		}
		return ""
	}
}

// FromHeader returns an OwnerIDExtractor that gets the owner id from a header.
func FromHeader(headerName string) OwnerIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithOwnerID adds the owner id to the request context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}
