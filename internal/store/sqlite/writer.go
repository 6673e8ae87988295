// Package sqlite persists fetched candles so a restart can warm the price
// cache without spending provider quota.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	defaultQueueSize  = 4096
)

// Config configures the candle store.
type Config struct {
	DBPath string       // path to SQLite database file, e.g. "data/candles.db"
	Logger *slog.Logger // nil uses slog.Default()
}

type pending struct {
	key    model.Key
	candle model.Candle
}

// Store is a model.CandleStore with a single-goroutine batched writer.
// SaveCandles only enqueues; Run commits.
type Store struct {
	db      *sql.DB
	queue   chan pending
	metrics *metrics.Metrics
	log     *slog.Logger
}

var _ model.CandleStore = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// SetMetrics records commit durations on m.
func (s *Store) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection plus one for warm-start reads.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	s := &Store{db: db, queue: make(chan pending, defaultQueueSize), log: l.With("component", "sqlite")}
	s.log.Info("opened database", "path", cfg.DBPath)
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT    NOT NULL,
			tf     TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, tf, ts)
		);
	`)
	return err
}

// SaveCandles enqueues candles for the writer. It never blocks on disk; when
// the queue is full the remaining candles are dropped and an error returned.
func (s *Store) SaveCandles(ctx context.Context, key model.Key, candles []model.Candle) error {
	for i, c := range candles {
		select {
		case s.queue <- pending{key: key, candle: c}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			return fmt.Errorf("sqlite queue full, dropped %d candles for %s", len(candles)-i, key)
		}
	}
	return nil
}

// Run drains the queue and inserts candles in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled, then flushes what is queued.
func (s *Store) Run(ctx context.Context) {
	batch := make([]pending, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertBatch(batch); err != nil {
			s.log.Error("batch insert failed", "candles", len(batch), "error", err)
		} else if s.metrics != nil {
			s.metrics.CandleStoreCommitDur.Observe(time.Since(start).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case p := <-s.queue:
					batch = append(batch, p)
					if len(batch) >= defaultBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case p := <-s.queue:
			batch = append(batch, p)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch upserts a batch of candles in a single transaction.
func (s *Store) insertBatch(batch []pending) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range batch {
		c := p.candle
		_, err := stmt.Exec(p.key.Symbol, string(p.key.Timeframe), c.Timestamp.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database. Call after Run has returned.
func (s *Store) Close() error {
	return s.db.Close()
}
