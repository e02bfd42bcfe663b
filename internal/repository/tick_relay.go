package repository

import (
	"context"
	"database/sql"
	"fmt"

	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
	pkgkafka "OptiFlow/pkg/kafka"
)

// KafkaTickRelay publishes normalized ticks to a Kafka topic so downstream
// systems can consume the same stream the engine folds. Keyed by instrument
// token for per-instrument ordering.
type KafkaTickRelay struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTickRelay creates a Kafka-backed relay.
func NewKafkaTickRelay(producer *pkgkafka.Producer, topic string) drepo.TickRelay {
	return &KafkaTickRelay{producer: producer, topic: topic}
}

func (r *KafkaTickRelay) Relay(ctx context.Context, t *models.Tick) error {
	return r.producer.Publish(ctx, r.topic, []byte(t.InstrumentToken), map[string]interface{}{
		"token":      t.InstrumentToken,
		"last_price": t.LastPrice,
		"oi":         t.OpenInterest,
		"volume":     t.Volume,
		"ts":         t.Timestamp.UnixMilli(),
	})
}

func (r *KafkaTickRelay) Close() error {
	if r.producer != nil {
		return r.producer.Close()
	}
	return nil
}

// ClickHouseTickRelay archives normalized ticks into a ClickHouse table.
type ClickHouseTickRelay struct {
	db    *sql.DB
	table string
}

// NewClickHouseTickRelay creates a ClickHouse-backed relay.
func NewClickHouseTickRelay(db *sql.DB, table string) drepo.TickRelay {
	return &ClickHouseTickRelay{db: db, table: table}
}

func (r *ClickHouseTickRelay) Relay(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, token, last_price, oi, volume) VALUES (?, ?, ?, ?, ?)", r.table)
	_, err := r.db.ExecContext(ctx, q, t.Timestamp, t.InstrumentToken, t.LastPrice, t.OpenInterest, t.Volume)
	return err
}

func (r *ClickHouseTickRelay) Close() error {
	return nil // pool owned by pkg client
}

// TickTableSchema is the idempotent DDL for the tick archive table.
func TickTableSchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts         DateTime64(3),
		token      String,
		last_price Float64,
		oi         Float64,
		volume     Float64
	) ENGINE = MergeTree()
	PARTITION BY toDate(ts)
	ORDER BY (token, ts)`, table)}
}
