package analysis

import (
	"context"

	"github.com/Avi18971911/Tracelane/internal/db/write_buffer"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"github.com/Avi18971911/Tracelane/internal/storage"
)

// SegmentRecordListener writes one searchable record per segment.
type SegmentRecordListener struct {
	listener.NopListener
	writeBuffer write_buffer.DatabaseWriteBuffer[storage.SegmentRecord]
	traceIDs    []string
	record      *storage.SegmentRecord
}

func NewSegmentRecordListenerFactory(
	writeBuffer write_buffer.DatabaseWriteBuffer[storage.SegmentRecord],
) listener.Factory {
	return listener.FactoryFunc(func() listener.SpanListener {
		return &SegmentRecordListener{writeBuffer: writeBuffer}
	})
}

func (l *SegmentRecordListener) Name() string { return "segment_record" }

func (l *SegmentRecordListener) Points() listener.Point { return listener.First | listener.TraceIds }

func (l *SegmentRecordListener) ParseGlobalTraceID(_ context.Context, traceID model.UniqueID, _ *model.SegmentCoreInfo) error {
	l.traceIDs = append(l.traceIDs, traceID.String())
	return nil
}

func (l *SegmentRecordListener) ParseFirst(_ context.Context, span *model.Span, info *model.SegmentCoreInfo) error {
	l.record = &storage.SegmentRecord{
		Id:                info.SegmentID,
		SegmentID:         info.SegmentID,
		ServiceID:         info.ServiceID,
		ServiceInstanceID: info.ServiceInstanceID,
		EndpointID:        span.OperationNameID,
		EndpointName:      span.OperationName,
		StartTime:         info.StartTime,
		EndTime:           info.EndTime,
		Latency:           info.Latency(),
		IsError:           info.IsError,
		TimeBucket:        info.MinuteTimeBucket,
		DataBinary:        info.DataBinary,
	}
	return nil
}

func (l *SegmentRecordListener) Build(context.Context) error {
	if l.record == nil {
		return nil
	}
	l.record.TraceIDs = l.traceIDs
	l.writeBuffer.WriteToBuffer([]storage.SegmentRecord{*l.record})
	return nil
}
