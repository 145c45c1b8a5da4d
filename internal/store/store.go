package store

import (
	"context"
	"errors"
	"time"

	"fleetnav/internal/model"
)

// Store persists fleet state snapshots, webhook subscriptions and the
// webhook delivery queue. The dispatch registry remains the source of
// truth at runtime; SaveFleetState is a write-through journal so a
// restarted server can pick up where it left off.
type Store interface {
	// Fleet state
	SaveFleetState(ctx context.Context, vehicles []model.Vehicle, tasks []model.Task) error
	LoadFleetState(ctx context.Context) (vehicles []model.Vehicle, tasks []model.Task, err error)

	// Subscriptions
	CreateSubscription(ctx context.Context, in model.SubscriptionIn) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error
}

// WebhookDelivery is one queued webhook dispatch attempt.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
