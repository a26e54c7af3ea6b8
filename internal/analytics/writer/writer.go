// Package writer streams analytics rows into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/luggagedeposit-backend/pkg/bigquery"
)

// defaultBatchSize is used when Config.BatchSize is unset.
const defaultBatchSize = 1

type Config struct {
	// BatchSize rows are buffered before an insert. The worker acks a
	// message once its row is written, so it uses the default of 1.
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds retries of transient insert failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = 2 * time.Second
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

type rowInserter interface {
	InsertBookingEvents(ctx context.Context, rows []any) error
}

// BigQueryWriter buffers booking_events rows and inserts them in batches.
// It is not safe for concurrent use.
type BigQueryWriter struct {
	client    rowInserter
	batchSize int
	retry     RetryPolicy

	buffer []types.BookingEventRow
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return &BigQueryWriter{
		client:    client,
		batchSize: max(cfg.BatchSize, defaultBatchSize),
		retry:     cfg.RetryPolicy.withDefaults(),
	}, nil
}

// InsertBookingEvent buffers row and flushes once the batch is full.
func (w *BigQueryWriter) InsertBookingEvent(ctx context.Context, row types.BookingEventRow) error {
	w.buffer = append(w.buffer, row)
	if len(w.buffer) < w.batchSize {
		return nil
	}
	return w.Flush(ctx)
}

// Flush inserts the buffered rows. Rows carry their event id as insert id
// so BigQuery drops redelivered events on a best-effort basis. Rows stay
// buffered when the insert fails.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	rows := make([]any, 0, len(w.buffer))
	for i := range w.buffer {
		rows = append(rows, &cbigquery.StructSaver{Struct: &w.buffer[i], InsertID: w.buffer[i].EventID})
	}
	if err := w.insert(ctx, rows); err != nil {
		return fmt.Errorf("insert %d booking event rows: %w", len(rows), err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.client.InsertBookingEvents(ctx, rows)
		if err == nil || attempt >= w.retry.MaxAttempts || !isTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}
