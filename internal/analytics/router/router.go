package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/luggagedeposit-backend/internal/analytics/types"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/registry"
)

var (
	ErrUnsupportedEventType = errors.New("unsupported analytics event type")
	// ErrMalformedPayload marks payloads that will never decode; redelivery cannot help.
	ErrMalformedPayload = errors.New("malformed analytics payload")
)

// Writer delivers BigQuery rows produced from booking events.
type Writer interface {
	InsertBookingEvent(ctx context.Context, row types.BookingEventRow) error
}

// Router decodes booking events and maps each one onto a booking_events row.
type Router struct {
	writer   Writer
	decoders *registry.DecoderRegistry
	logg     *logger.Logger
}

// NewRouter builds a router. A nil decoder registry falls back to the v1
// booking decoders.
func NewRouter(writer Writer, decoders *registry.DecoderRegistry, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if decoders == nil {
		decoders = registry.NewBookingDecoderRegistry()
	}
	return &Router{writer: writer, decoders: decoders, logg: logg}, nil
}

// Handle decodes the envelope payload and writes the resulting row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	if !envelope.EventType.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrMalformedPayload, envelope.EventType)
	}
	version := envelope.Version
	if version <= 0 {
		version = 1
	}
	payload, err := r.decoders.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("%w: %s@v%d: %v", ErrMalformedPayload, envelope.EventType, version, err)
	}

	row, err := buildRow(envelope, payload)
	if err != nil {
		return err
	}
	return r.writer.InsertBookingEvent(ctx, row)
}
