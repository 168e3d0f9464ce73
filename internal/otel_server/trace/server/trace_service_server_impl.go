package server

import (
	"context"
	"fmt"

	"github.com/Avi18971911/Tracelane/internal/segment/codec"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
)

// SegmentSender hands an encoded segment envelope to the parser.
type SegmentSender interface {
	Send(ctx context.Context, raw []byte) error
}

type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	sender      SegmentSender
	compression codec.Compression
	logger      *zap.Logger
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	sender SegmentSender,
	compression codec.Compression,
) TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return TraceServiceServerImpl{
		logger:      logger,
		sender:      sender,
		compression: compression,
	}
}

func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	rejected := int64(0)
	for _, resourceSpan := range req.ResourceSpans {
		serviceName := getServiceName(resourceSpan)
		if serviceName == "" {
			tss.logger.Warn("Service name not found in resource span")
		}

		for _, segment := range toSegments(resourceSpan, serviceName) {
			raw, err := codec.Encode(segment, tss.compression)
			if err != nil {
				tss.logger.Error("Failed to encode segment", zap.String("segmentId", segment.SegmentID.String()), zap.Error(err))
				rejected += int64(len(segment.Spans))
				continue
			}
			if err = tss.sender.Send(ctx, raw); err != nil {
				return nil, fmt.Errorf("failed to queue segment %s: %w", segment.SegmentID.String(), err)
			}
		}
	}

	response := &protoTrace.ExportTraceServiceResponse{}
	if rejected > 0 {
		response.PartialSuccess = &protoTrace.ExportTracePartialSuccess{
			RejectedSpans: rejected,
			ErrorMessage:  "some spans could not be encoded",
		}
	}
	return response, nil
}
