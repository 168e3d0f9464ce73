package listener

import (
	"context"

	"github.com/Avi18971911/Tracelane/internal/segment/model"
)

// Point is the set of notifications a listener wants to receive.
type Point uint8

const (
	Entry Point = 1 << iota
	Exit
	Local
	First
	TraceIds
)

func (p Point) Has(other Point) bool {
	return p&other == other
}

// SpanListener receives the spans of one committed segment. A fresh listener is created per
// segment, so implementations may keep per-segment state without locking and emit it in Build.
type SpanListener interface {
	Name() string
	Points() Point
	ParseEntry(ctx context.Context, span *model.Span, info *model.SegmentCoreInfo) error
	ParseExit(ctx context.Context, span *model.Span, info *model.SegmentCoreInfo) error
	ParseLocal(ctx context.Context, span *model.Span, info *model.SegmentCoreInfo) error
	ParseFirst(ctx context.Context, span *model.Span, info *model.SegmentCoreInfo) error
	ParseGlobalTraceID(ctx context.Context, traceID model.UniqueID, info *model.SegmentCoreInfo) error
	Build(ctx context.Context) error
}

// Factory creates a fresh listener for every parse.
type Factory interface {
	Create() SpanListener
}

type FactoryFunc func() SpanListener

func (f FactoryFunc) Create() SpanListener {
	return f()
}

// NopListener implements every callback as a no-op. Embed it and override what the Points ask for.
type NopListener struct{}

func (NopListener) ParseEntry(context.Context, *model.Span, *model.SegmentCoreInfo) error {
	return nil
}

func (NopListener) ParseExit(context.Context, *model.Span, *model.SegmentCoreInfo) error {
	return nil
}

func (NopListener) ParseLocal(context.Context, *model.Span, *model.SegmentCoreInfo) error {
	return nil
}

func (NopListener) ParseFirst(context.Context, *model.Span, *model.SegmentCoreInfo) error {
	return nil
}

func (NopListener) ParseGlobalTraceID(context.Context, model.UniqueID, *model.SegmentCoreInfo) error {
	return nil
}

func (NopListener) Build(context.Context) error {
	return nil
}
