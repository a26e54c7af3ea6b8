package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/luggagedeposit-backend/pkg/bigquery"
)

func TestNewWriterValidation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatal("expected error when client missing")
	}
	writer, err := New(&pkgbigquery.Client{}, Config{RetryPolicy: RetryPolicy{InitialBackoff: time.Second, MaximumBackoff: time.Millisecond}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writer.retry.MaximumBackoff != time.Second {
		t.Fatalf("maximum backoff should be raised to the initial backoff, got %s", writer.retry.MaximumBackoff)
	}
	if writer.batchSize != defaultBatchSize {
		t.Fatalf("unexpected default batch size %d", writer.batchSize)
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"booking_ref": "ABC123"})
	if err != nil {
		t.Fatalf("unexpected error encoding json: %v", err)
	}
	if !nj.Valid {
		t.Fatal("expected json to be marked valid")
	}

	nj, err = EncodeJSON(nil)
	if err != nil {
		t.Fatalf("unexpected error for nil json: %v", err)
	}
	if nj.Valid {
		t.Fatal("expected nil json to be invalid")
	}

	rawMessage := json.RawMessage(`{"booking_ref":"XYZ789"}`)
	nj, err = EncodeJSON(rawMessage)
	if err != nil {
		t.Fatalf("unexpected error encoding raw json: %v", err)
	}
	if nj.JSONVal != string(rawMessage) {
		t.Fatalf("expected raw json passed through, got %s", nj.JSONVal)
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	if err := writer.InsertBookingEvent(context.Background(), types.BookingEventRow{EventID: "evt-1"}); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
	if len(writer.buffer) != 0 {
		t.Fatal("expected buffer to be empty after success")
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := writer.InsertBookingEvent(context.Background(), types.BookingEventRow{EventID: "evt-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", len(fake.calls))
	}
	if len(writer.buffer) != 1 {
		t.Fatal("failed rows stay buffered")
	}
}

func TestWriterKeysRowsOnEventID(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	if err := writer.InsertBookingEvent(context.Background(), types.BookingEventRow{EventID: "evt-42"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saver, ok := fake.calls[0].rows[0].(*cbigquery.StructSaver)
	if !ok {
		t.Fatalf("expected struct saver, got %T", fake.calls[0].rows[0])
	}
	if saver.InsertID != "evt-42" {
		t.Fatalf("unexpected insert id %q", saver.InsertID)
	}
}

func TestWriterBatching(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	if err := writer.InsertBookingEvent(context.Background(), types.BookingEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no insert before batch full, got %d", len(fake.calls))
	}

	if err := writer.InsertBookingEvent(context.Background(), types.BookingEventRow{EventID: "2"}); err != nil {
		t.Fatalf("unexpected error on second insert: %v", err)
	}
	if len(fake.calls) != 1 || len(fake.calls[0].rows) != 2 {
		t.Fatalf("expected a single two-row insert, got %+v", fake.calls)
	}
}

func TestWriterFlush(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 10
	if err := writer.InsertBookingEvent(context.Background(), types.BookingEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected flush to insert once, got %d", len(fake.calls))
	}
	if len(writer.buffer) != 0 {
		t.Fatalf("expected buffer to be empty after flush, got %d", len(writer.buffer))
	}
}

func TestIsRetryableBigQueryError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":               {nil, false},
		"plain":             {errors.New("boom"), false},
		"http 429":          {&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		"http 404":          {&googleapi.Error{Code: http.StatusNotFound}, false},
		"grpc unavailable":  {status.Error(codes.Unavailable, "down"), true},
		"grpc invalid":      {status.Error(codes.InvalidArgument, "bad"), false},
		"multi retryable":   {&cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadGateway}}, true},
		"multi mixed":       {&cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadGateway}, errors.New("bad row")}, false},
		"empty multi error": {&cbigquery.MultiError{}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

type insertCall struct {
	rows []any
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
	index     int
}

func (f *fakeInserter) InsertBookingEvents(_ context.Context, rows []any) error {
	f.calls = append(f.calls, insertCall{rows: append([]any(nil), rows...)})
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	writer, err := New(&pkgbigquery.Client{}, Config{RetryPolicy: RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond}})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}

	fake := &fakeInserter{}
	writer.client = fake
	return writer, fake
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake.responses = []error{unavailable, unavailable, unavailable, nil}

	err := writer.InsertBookingEvent(context.Background(), types.BookingEventRow{EventID: "evt-1"})
	if !errors.Is(err, unavailable) {
		t.Fatalf("expected last insert error, got %v", err)
	}
	if len(fake.calls) != writer.retry.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", writer.retry.MaxAttempts, len(fake.calls))
	}
}
