package parser

import (
	"context"
	"fmt"

	"github.com/Avi18971911/Tracelane/internal/registry"
	"github.com/Avi18971911/Tracelane/internal/segment/codec"
	"github.com/Avi18971911/Tracelane/internal/segment/exchange"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"go.uber.org/zap"
)

// Source tells the parser where an envelope came from.
type Source int

const (
	Agent Source = iota
	Buffer
)

func (s Source) String() string {
	if s == Buffer {
		return "buffer"
	}
	return "agent"
}

// Enqueuer accepts segments whose names could not all be exchanged yet.
type Enqueuer interface {
	Enqueue(segmentID string, raw []byte) error
}

type SegmentParser interface {
	// Parse returns true when the envelope was consumed: committed, or dropped because it can
	// never be parsed. It returns false when the segment is not committed yet.
	Parse(ctx context.Context, raw []byte, source Source) bool
}

type SegmentParserImpl struct {
	exchanger exchange.IDExchanger
	registry  registry.Registry
	manager   *listener.Manager
	buffer    Enqueuer
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

func NewSegmentParserImpl(
	exchanger exchange.IDExchanger,
	registry registry.Registry,
	manager *listener.Manager,
	buffer Enqueuer,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *SegmentParserImpl {
	return &SegmentParserImpl{
		exchanger: exchanger,
		registry:  registry,
		manager:   manager,
		buffer:    buffer,
		metrics:   metrics,
		logger:    logger,
	}
}

func (sp *SegmentParserImpl) Parse(ctx context.Context, raw []byte, source Source) (consumed bool) {
	sp.metrics.SegmentsReceived.Inc()
	defer func() {
		if r := recover(); r != nil {
			sp.metrics.ParseErrors.Inc()
			sp.logger.Error(
				"Unexpected failure while parsing segment",
				zap.String("source", source.String()),
				zap.Error(fmt.Errorf("%v", r)),
			)
			consumed = true
		}
	}()

	segment, err := codec.Decode(raw)
	if err != nil {
		sp.metrics.ParseErrors.Inc()
		sp.logger.Error("Failed to decode segment", zap.String("source", source.String()), zap.Error(err))
		return true
	}
	segmentID := segment.SegmentID.String()

	if segment.ServiceInstanceID != 0 {
		known, err := sp.registry.Contains(ctx, registry.ServiceInstanceScope, segment.ServiceInstanceID)
		if err == nil && !known {
			sp.logger.Warn(
				"Ignoring segment of an unknown service instance",
				zap.String("segmentId", segmentID),
				zap.Int32("serviceInstanceId", segment.ServiceInstanceID),
			)
			return true
		}
		if err != nil {
			sp.logger.Error("Failed to check service instance", zap.String("segmentId", segmentID), zap.Error(err))
			return sp.postpone(segmentID, raw, source)
		}
	}

	if !sp.exchanger.ExchangeSegment(ctx, segment) {
		return sp.postpone(segmentID, raw, source)
	}

	sp.commit(ctx, segment, segmentID, raw)
	if source == Buffer {
		sp.metrics.BufferFileOut.Inc()
	}
	return true
}

// postpone parks an agent segment in the retry buffer. A segment replayed from the buffer stays
// where it is, the buffer keeps it until a later pass commits it.
func (sp *SegmentParserImpl) postpone(segmentID string, raw []byte, source Source) bool {
	if source == Buffer {
		sp.metrics.BufferFileRetry.Inc()
		return false
	}
	if err := sp.buffer.Enqueue(segmentID, raw); err != nil {
		sp.metrics.BufferWriteErrors.Inc()
		sp.logger.Error("Failed to buffer unresolved segment, dropping it", zap.String("segmentId", segmentID), zap.Error(err))
		return false
	}
	sp.logger.Debug("Buffered unresolved segment", zap.String("segmentId", segmentID))
	return false
}

func (sp *SegmentParserImpl) commit(ctx context.Context, segment *model.Segment, segmentID string, raw []byte) {
	info := model.NewSegmentCoreInfo()
	info.SegmentID = segmentID
	info.ServiceID = segment.ServiceID
	info.ServiceInstanceID = segment.ServiceInstanceID
	info.DataBinary = raw
	for i := range segment.Spans {
		info.Fold(&segment.Spans[i])
	}
	if len(segment.Spans) > 0 {
		info.MinuteTimeBucket = model.MinuteTimeBucket(info.StartTime)
	}

	dispatcher := sp.manager.NewDispatcher()
	for _, traceID := range segment.GlobalTraceIDs {
		dispatcher.NotifyGlobalTraceID(ctx, traceID, info)
	}
	for i := range segment.Spans {
		dispatcher.NotifySpan(ctx, &segment.Spans[i], info)
	}
	dispatcher.Build(ctx)
	sp.metrics.SegmentsCommitted.Inc()
}
