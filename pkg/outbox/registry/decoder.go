package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox"
)

// Decoder turns the data section of an envelope into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds payload decoders per event type and envelope
// version, so consumers can keep reading old versions after a schema bump.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]Decoder)}
}

// NewBookingDecoderRegistry registers the current envelope version of every
// booking event.
func NewBookingDecoderRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for eventType, factory := range bookingPayloads {
		reg.Register(eventType, outbox.EnvelopeVersion, jsonDecoder(factory))
	}
	return reg
}

func jsonDecoder(factory func() any) Decoder {
	return func(data json.RawMessage) (any, error) {
		target := factory()
		if err := json.Unmarshal(data, target); err != nil {
			return nil, err
		}
		return target, nil
	}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[decoderKey{eventType, version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[decoderKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(data)
}
