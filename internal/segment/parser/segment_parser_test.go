package parser

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Avi18971911/Tracelane/internal/registry"
	"github.com/Avi18971911/Tracelane/internal/segment/codec"
	"github.com/Avi18971911/Tracelane/internal/segment/exchange"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEnqueuer struct {
	mu      sync.Mutex
	entries map[string][]byte
	order   []string
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{entries: make(map[string][]byte)}
}

func (f *fakeEnqueuer) Enqueue(segmentID string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[segmentID] = raw
	f.order = append(f.order, segmentID)
	return nil
}

// eventLog is shared between every listener created for a test.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventLog) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type loggingListener struct {
	log *eventLog
}

func (l *loggingListener) Name() string { return "logging" }

func (l *loggingListener) Points() listener.Point {
	return listener.Entry | listener.Exit | listener.Local | listener.First | listener.TraceIds
}

func (l *loggingListener) ParseEntry(_ context.Context, span *model.Span, _ *model.SegmentCoreInfo) error {
	l.log.add(fmt.Sprintf("entry:s%d", span.SpanID))
	return nil
}

func (l *loggingListener) ParseExit(_ context.Context, span *model.Span, _ *model.SegmentCoreInfo) error {
	l.log.add(fmt.Sprintf("exit:s%d", span.SpanID))
	return nil
}

func (l *loggingListener) ParseLocal(_ context.Context, span *model.Span, _ *model.SegmentCoreInfo) error {
	l.log.add(fmt.Sprintf("local:s%d", span.SpanID))
	return nil
}

func (l *loggingListener) ParseFirst(_ context.Context, span *model.Span, info *model.SegmentCoreInfo) error {
	l.log.add(fmt.Sprintf("first:s%d:bucket=%d", span.SpanID, info.MinuteTimeBucket))
	return nil
}

func (l *loggingListener) ParseGlobalTraceID(_ context.Context, id model.UniqueID, _ *model.SegmentCoreInfo) error {
	l.log.add("trace:" + id.String())
	return nil
}

func (l *loggingListener) Build(context.Context) error {
	l.log.add("build")
	return nil
}

type parserFixture struct {
	parser   *SegmentParserImpl
	registry *registry.MemoryRegistry
	buffer   *fakeEnqueuer
	events   *eventLog
	metrics  *telemetry.Metrics
}

func newParserFixture() *parserFixture {
	logger := zap.NewNop()
	reg := registry.NewMemoryRegistry()
	events := &eventLog{}
	metrics := telemetry.NewNopMetrics()
	manager := listener.NewManager(metrics, logger, listener.FactoryFunc(func() listener.SpanListener {
		return &loggingListener{log: events}
	}))
	buffer := newFakeEnqueuer()
	return &parserFixture{
		parser:   NewSegmentParserImpl(exchange.NewIDExchangerImpl(reg, logger), reg, manager, buffer, metrics, logger),
		registry: reg,
		buffer:   buffer,
		events:   events,
		metrics:  metrics,
	}
}

func encode(t *testing.T, segment *model.Segment) []byte {
	raw, err := codec.Encode(segment, codec.CompressionZstd)
	require.NoError(t, err)
	return raw
}

func getUnresolvedSegment() *model.Segment {
	return &model.Segment{
		SegmentID:           model.UniqueID{IdParts: []int64{3, 4, 5}},
		ServiceName:         "svcB",
		ServiceInstanceName: "svcB-1",
		GlobalTraceIDs:      []model.UniqueID{{IdParts: []int64{9, 9}}},
		Spans: []model.Span{
			{
				SpanID:        0,
				ParentSpanID:  -1,
				SpanType:      model.Entry,
				StartTime:     1700000075123,
				EndTime:       1700000075200,
				OperationName: "/pay",
				Refs:          []model.Reference{{ParentServiceName: "svcX", ParentEndpointName: "/checkout"}},
			},
		},
	}
}

func TestSegmentParserImpl_Parse(t *testing.T) {
	ctx := context.Background()

	t.Run("Notifies spans in order and builds after the last one", func(t *testing.T) {
		f := newParserFixture()
		segment := &model.Segment{
			SegmentID:   model.UniqueID{IdParts: []int64{1, 2, 3}},
			ServiceName: "svcA",
			GlobalTraceIDs: []model.UniqueID{
				{IdParts: []int64{7, 1}},
				{IdParts: []int64{7, 2}},
			},
			Spans: []model.Span{
				{SpanID: 0, ParentSpanID: -1, SpanType: model.Entry, StartTime: 1700000075123, EndTime: 1700000075300, OperationName: "/a"},
				{SpanID: 1, ParentSpanID: 0, SpanType: model.Exit, StartTime: 1700000075130, EndTime: 1700000075200, OperationName: "GET", Peer: "b:80"},
				{SpanID: 2, ParentSpanID: 0, SpanType: model.Local, StartTime: 1700000075140, EndTime: 1700000075150, OperationName: "compute"},
			},
		}

		assert.True(t, f.parser.Parse(ctx, encode(t, segment), Agent))
		assert.Equal(t, []string{
			"trace:7.1",
			"trace:7.2",
			"first:s0:bucket=1700000040000",
			"entry:s0",
			"exit:s1",
			"local:s2",
			"build",
		}, f.events.snapshot())
		assert.Empty(t, f.buffer.entries)
	})

	t.Run("Buffers an unresolved agent segment without notifying anyone", func(t *testing.T) {
		f := newParserFixture()
		raw := encode(t, getUnresolvedSegment())

		assert.False(t, f.parser.Parse(ctx, raw, Agent))
		assert.Empty(t, f.events.snapshot())
		assert.Equal(t, raw, f.buffer.entries["3.4.5"])
	})

	t.Run("Commits a buffered segment once the parent service registers", func(t *testing.T) {
		f := newParserFixture()
		raw := encode(t, getUnresolvedSegment())
		require.False(t, f.parser.Parse(ctx, raw, Agent))

		_, err := f.registry.RegisterAndResolve(ctx, registry.ServiceScope, registry.NoParent, "svcX")
		require.NoError(t, err)

		assert.True(t, f.parser.Parse(ctx, f.buffer.entries["3.4.5"], Buffer))
		firsts := 0
		for _, event := range f.events.snapshot() {
			if event == "first:s0:bucket=1700000040000" {
				firsts++
			}
		}
		assert.Equal(t, 1, firsts)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BufferFileOut))
	})

	t.Run("Does not re-enqueue a buffered segment that is still unresolved", func(t *testing.T) {
		f := newParserFixture()
		raw := encode(t, getUnresolvedSegment())

		assert.False(t, f.parser.Parse(ctx, raw, Buffer))
		assert.Empty(t, f.buffer.order)
		assert.Empty(t, f.events.snapshot())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BufferFileRetry))
	})

	t.Run("Consumes an undecodable envelope and counts it", func(t *testing.T) {
		f := newParserFixture()
		assert.True(t, f.parser.Parse(ctx, []byte{0x7f, 0x00, 0x01}, Agent))
		assert.Empty(t, f.events.snapshot())
		assert.Empty(t, f.buffer.order)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ParseErrors))
	})

	t.Run("Ignores a segment of an unknown service instance", func(t *testing.T) {
		f := newParserFixture()
		segment := getUnresolvedSegment()
		segment.ServiceInstanceID = 42
		assert.True(t, f.parser.Parse(ctx, encode(t, segment), Agent))
		assert.Empty(t, f.events.snapshot())
		assert.Empty(t, f.buffer.order)
	})
}

type countingParser struct {
	mu      sync.Mutex
	sources []Source
	wg      *sync.WaitGroup
}

func (c *countingParser) Parse(_ context.Context, _ []byte, source Source) bool {
	c.mu.Lock()
	c.sources = append(c.sources, source)
	c.mu.Unlock()
	if c.wg != nil {
		c.wg.Done()
	}
	return source == Buffer
}

func TestProducer(t *testing.T) {
	t.Run("Parses sent envelopes as agent segments on the workers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(3)
		parser := &countingParser{wg: &wg}
		producer := NewProducer(parser, 2, 8, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() { done <- producer.Run(ctx) }()

		for i := 0; i < 3; i++ {
			require.NoError(t, producer.Send(ctx, []byte{byte(i)}))
		}
		wg.Wait()
		cancel()
		assert.NoError(t, <-done)
		assert.Equal(t, []Source{Agent, Agent, Agent}, parser.sources)
	})

	t.Run("Parses buffered envelopes inline as buffer segments", func(t *testing.T) {
		parser := &countingParser{}
		producer := NewProducer(parser, 1, 1, zap.NewNop())
		assert.True(t, producer.Call(context.Background(), []byte{1}))
		assert.Equal(t, []Source{Buffer}, parser.sources)
	})
}
