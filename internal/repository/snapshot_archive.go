package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"OptiFlow/internal/domain/models"
	applogger "OptiFlow/pkg/logger"
)

// SnapshotArchive persists recomputed snapshots to ClickHouse for historical
// queries. Implements repository.SnapshotSink; Publish never blocks the
// engine: rows queue into a bounded buffer drained by one background writer,
// overflow is dropped.
type SnapshotArchive struct {
	db     *sql.DB
	table  string
	logger *applogger.Logger

	buf    chan *models.DerivedSnapshot
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

const (
	archiveBufferSize = 4096
	archiveBatchSize  = 500
	archiveFlushEvery = 2 * time.Second
)

// NewSnapshotArchive creates the archive and starts its writer.
func NewSnapshotArchive(db *sql.DB, table string, l *applogger.Logger) *SnapshotArchive {
	a := &SnapshotArchive{
		db:     db,
		table:  table,
		logger: l,
		buf:    make(chan *models.DerivedSnapshot, archiveBufferSize),
		done:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writeLoop()
	return a
}

// Publish queues one snapshot for archival.
func (a *SnapshotArchive) Publish(snap *models.DerivedSnapshot) {
	select {
	case a.buf <- snap:
	default:
		a.logger.Warn("archive buffer full, snapshot dropped",
			applogger.String("symbol", snap.Symbol),
			applogger.String("metric", string(snap.MetricType)))
	}
}

// Close flushes pending rows and stops the writer.
func (a *SnapshotArchive) Close() error {
	a.closed.Do(func() { close(a.done) })
	a.wg.Wait()
	return nil
}

func (a *SnapshotArchive) writeLoop() {
	defer a.wg.Done()
	batch := make([]*models.DerivedSnapshot, 0, archiveBatchSize)
	ticker := time.NewTicker(archiveFlushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.insert(batch); err != nil {
			a.logger.Error("archive insert failed", applogger.Error(err), applogger.Int("rows", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case snap := <-a.buf:
			batch = append(batch, snap)
			if len(batch) >= archiveBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.done:
			for {
				select {
				case snap := <-a.buf:
					batch = append(batch, snap)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (a *SnapshotArchive) insert(batch []*models.DerivedSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	values := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*6)
	for _, snap := range batch {
		payload, err := json.Marshal(snap.Payload)
		if err != nil {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args,
			snap.GeneratedAt,
			snap.Symbol,
			snap.Expiry,
			string(snap.Interval),
			string(snap.MetricType),
			string(payload),
		)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (generated_at, symbol, expiry, interval, metric, payload) VALUES %s",
		a.table, strings.Join(values, ","))
	_, err := a.db.ExecContext(ctx, q, args...)
	return err
}

// SnapshotTableSchema is the idempotent DDL for the snapshot archive table.
func SnapshotTableSchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		generated_at DateTime64(3),
		symbol       String,
		expiry       String,
		interval     String,
		metric       String,
		payload      String
	) ENGINE = MergeTree()
	PARTITION BY toDate(generated_at)
	ORDER BY (symbol, metric, generated_at)`, table)}
}
