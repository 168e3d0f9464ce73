package event_bus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
)

// Handler consumes one delivered value. An error is logged and does not stop later deliveries.
type Handler[T any] func(value T) error

// Bus fans values of one type out to asynchronous subscribers. A value is CBOR encoded once per
// Publish and each subscriber decodes its own copy, so handlers never share maps or slices.
type Bus[T any] struct {
	bus    EventBus.Bus
	enc    cbor.EncMode
	dec    cbor.DecMode
	mu     sync.Mutex
	closed bool
	subs   map[string][]func(frame []byte)
	logger *zap.Logger
}

var ErrBusClosed = errors.New("event bus is closed")

func NewBus[T any](bus EventBus.Bus, logger *zap.Logger) *Bus[T] {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	// signed ints keep int64 columns int64 after the round trip
	dec, err := cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]interface{}{}),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return &Bus[T]{
		bus:    bus,
		enc:    enc,
		dec:    dec,
		subs:   make(map[string][]func(frame []byte)),
		logger: logger,
	}
}

// Subscribe registers handler on topic. Transactional subscribers receive values one at a time in
// publish order.
func (b *Bus[T]) Subscribe(topic string, handler Handler[T], transactional bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	deliver := func(frame []byte) {
		var value T
		if err := b.dec.Unmarshal(frame, &value); err != nil {
			b.logger.Error("Dropping undecodable event", zap.String("topic", topic), zap.Error(err))
			return
		}
		b.invoke(topic, handler, value)
	}
	if err := b.bus.SubscribeAsync(topic, deliver, transactional); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	b.subs[topic] = append(b.subs[topic], deliver)
	return nil
}

func (b *Bus[T]) invoke(topic string, handler Handler[T], value T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	if err := handler(value); err != nil {
		b.logger.Error("Event handler failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Publish is a no-op when nobody listens on topic.
func (b *Bus[T]) Publish(topic string, value T) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}
	if !b.bus.HasCallback(topic) {
		return nil
	}
	frame, err := b.enc.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode event for topic %s: %w", topic, err)
	}
	b.bus.Publish(topic, frame)
	return nil
}

// WaitAsync blocks until every delivery published so far has been handled.
func (b *Bus[T]) WaitAsync() {
	b.bus.WaitAsync()
}

// Close waits for in-flight deliveries and removes this bus's subscribers. Later calls to
// Publish and Subscribe fail with ErrBusClosed.
func (b *Bus[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	b.bus.WaitAsync()
	var errs []error
	for topic, delivers := range subs {
		for _, deliver := range delivers {
			if err := b.bus.Unsubscribe(topic, deliver); err != nil {
				errs = append(errs, fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, err))
			}
		}
	}
	return errors.Join(errs...)
}
