package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tibcore/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// JournalConfig configures the alert journal.
type JournalConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/alerts.db"
}

// Journal is a single-goroutine SQLite writer with transaction batching.
// It records every fired alert and every delivery outcome so operators
// can reconstruct what the system said and when.
type Journal struct {
	db  *sql.DB
	log zerolog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens the journal database with WAL mode and initializes the schema.
func New(cfg JournalConfig, log zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info().Str("path", cfg.DBPath).Msg("opened alert journal")
	return &Journal{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_events (
			id         TEXT    PRIMARY KEY,
			rule_id    TEXT    NOT NULL,
			instrument TEXT    NOT NULL,
			timeframe  INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			severity   TEXT    NOT NULL,
			message    TEXT    NOT NULL,
			trigger_kind TEXT  NOT NULL,
			trigger_id TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alert_events_instrument_ts
			ON alert_events (instrument, ts);

		CREATE TABLE IF NOT EXISTS delivery_status (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT    NOT NULL,
			sink       TEXT    NOT NULL,
			attempts   INTEGER NOT NULL,
			delivered  INTEGER NOT NULL,
			error      TEXT,
			ts         INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_delivery_status_event
			ON delivery_status (event_id);
	`)
	return err
}

// Run consumes alert events and delivery statuses, inserting them in
// batched transactions. Flushes every defaultBatchSize records OR every
// defaultFlushDelay, whichever comes first. Blocks until ctx is
// cancelled or both channels are closed.
func (j *Journal) Run(ctx context.Context, evCh <-chan model.AlertEvent, stCh <-chan model.DeliveryStatus) {
	events := make([]model.AlertEvent, 0, defaultBatchSize)
	statuses := make([]model.DeliveryStatus, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(events) == 0 && len(statuses) == 0 {
			return
		}
		start := time.Now()
		if err := j.insertBatch(events, statuses); err != nil {
			j.log.Error().Err(err).Msg("journal batch insert")
		} else {
			j.log.Debug().
				Int("events", len(events)).
				Int("statuses", len(statuses)).
				Dur("took", time.Since(start)).
				Msg("journal batch committed")
		}
		events = events[:0]
		statuses = statuses[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case ev, ok := <-evCh:
			if !ok {
				flush()
				return
			}
			events = append(events, ev)
			if len(events) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case st, ok := <-stCh:
			if !ok {
				flush()
				return
			}
			statuses = append(statuses, st)
			if len(statuses) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch writes pending events and statuses in a single transaction.
func (j *Journal) insertBatch(events []model.AlertEvent, statuses []model.DeliveryStatus) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}

	if len(events) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO alert_events
				(id, rule_id, instrument, timeframe, ts, severity, message, trigger_kind, trigger_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			tx.Rollback()
			return err
		}
		for _, ev := range events {
			_, err := stmt.Exec(
				ev.ID, ev.RuleID, ev.Instrument, int64(ev.Timeframe/time.Second),
				ev.TS.Unix(), string(ev.Severity), ev.Message, ev.TriggerKind, ev.TriggerID,
			)
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return err
			}
		}
		stmt.Close()
	}

	if len(statuses) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO delivery_status (event_id, sink, attempts, delivered, error, ts)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			tx.Rollback()
			return err
		}
		for _, st := range statuses {
			delivered := 0
			if st.Delivered {
				delivered = 1
			}
			_, err := stmt.Exec(st.EventID, st.Sink, st.Attempts, delivered, st.Error, st.TS.Unix())
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return err
			}
		}
		stmt.Close()
	}

	return tx.Commit()
}

// RecentEvents returns the most recent alert events for an instrument,
// newest first.
func (j *Journal) RecentEvents(ctx context.Context, instrument string, limit int) ([]model.AlertEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, rule_id, instrument, timeframe, ts, severity, message, trigger_kind, trigger_id
		FROM alert_events
		WHERE instrument = ?
		ORDER BY ts DESC
		LIMIT ?
	`, instrument, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AlertEvent
	for rows.Next() {
		var ev model.AlertEvent
		var tfSec, unix int64
		var severity string
		if err := rows.Scan(&ev.ID, &ev.RuleID, &ev.Instrument, &tfSec, &unix, &severity, &ev.Message, &ev.TriggerKind, &ev.TriggerID); err != nil {
			return nil, err
		}
		ev.Timeframe = time.Duration(tfSec) * time.Second
		ev.TS = time.Unix(unix, 0).UTC()
		ev.Severity = model.Severity(severity)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
