package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetnav/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate creates the schema if it does not exist (dev helper).
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fleet_vehicles (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fleet_tasks (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			events JSONB NOT NULL,
			secret TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id TEXT PRIMARY KEY,
			subscription_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			payload BYTEA,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			response_code INT,
			latency_ms INT,
			delivered_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_due
			ON webhook_deliveries (next_attempt_at) WHERE status IN ('pending','retry')`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveFleetState replaces the persisted snapshot with the given one.
func (p *Postgres) SaveFleetState(ctx context.Context, vehicles []model.Vehicle, tasks []model.Task) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fleet_vehicles`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fleet_tasks`); err != nil {
		return err
	}
	for _, v := range vehicles {
		doc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fleet_vehicles (id, doc) VALUES ($1,$2)`, v.ID, doc); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		doc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fleet_tasks (id, doc) VALUES ($1,$2)`, t.ID, doc); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) LoadFleetState(ctx context.Context) ([]model.Vehicle, []model.Task, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT doc FROM fleet_vehicles ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var vehicles []model.Vehicle
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, nil, err
		}
		var v model.Vehicle
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, nil, err
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	trows, err := p.db.QueryContext(ctx, `SELECT doc FROM fleet_tasks ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	defer trows.Close()
	var tasks []model.Task
	for trows.Next() {
		var doc []byte
		if err := trows.Scan(&doc); err != nil {
			return nil, nil, err
		}
		var t model.Task
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, t)
	}
	return vehicles, tasks, trows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, in model.SubscriptionIn) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(in.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		id, in.URL, ev, in.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: in.URL, Events: in.Events, Secret: in.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, url, secret, events FROM subscriptions WHERE events @> $1::jsonb OR events @> '["*"]'::jsonb`,
		fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, secret, events FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, subscription_id, event_type, url, secret, payload, status, attempts
		   FROM webhook_deliveries
		  WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		  ORDER BY next_attempt_at
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2, delivered_at=now() WHERE id=$3`,
			responseCode, latencyMs, id)
		return err
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3, next_attempt_at=$4 WHERE id=$5`,
		lastError, responseCode, latencyMs, next, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='failed', last_error=$1, response_code=$2 WHERE id=$3`,
		lastError, responseCode, id)
	return err
}
