package listener

import (
	"context"
	"fmt"

	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"go.uber.org/zap"
)

// Dispatcher fans the notifications of one segment out to its listeners. A failing or panicking
// listener is logged and counted; the remaining listeners still run.
type Dispatcher struct {
	listeners []SpanListener
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

func (d *Dispatcher) NotifyGlobalTraceID(ctx context.Context, traceID model.UniqueID, info *model.SegmentCoreInfo) {
	for _, l := range d.listeners {
		if !l.Points().Has(TraceIds) {
			continue
		}
		d.invoke(l, "ParseGlobalTraceID", func() error {
			return l.ParseGlobalTraceID(ctx, traceID, info)
		})
	}
}

// NotifySpan sends First before the span's type point when the span is the segment's first span.
func (d *Dispatcher) NotifySpan(ctx context.Context, span *model.Span, info *model.SegmentCoreInfo) {
	if span.SpanID == 0 {
		for _, l := range d.listeners {
			if !l.Points().Has(First) {
				continue
			}
			d.invoke(l, "ParseFirst", func() error {
				return l.ParseFirst(ctx, span, info)
			})
		}
	}

	for _, l := range d.listeners {
		switch span.SpanType {
		case model.Entry:
			if l.Points().Has(Entry) {
				d.invoke(l, "ParseEntry", func() error { return l.ParseEntry(ctx, span, info) })
			}
		case model.Exit:
			if l.Points().Has(Exit) {
				d.invoke(l, "ParseExit", func() error { return l.ParseExit(ctx, span, info) })
			}
		case model.Local:
			if l.Points().Has(Local) {
				d.invoke(l, "ParseLocal", func() error { return l.ParseLocal(ctx, span, info) })
			}
		}
	}
}

func (d *Dispatcher) Build(ctx context.Context) {
	for _, l := range d.listeners {
		d.invoke(l, "Build", func() error {
			return l.Build(ctx)
		})
	}
}

func (d *Dispatcher) invoke(l SpanListener, callback string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.fail(l, callback, fmt.Errorf("listener panicked: %v", r))
		}
	}()
	if err := fn(); err != nil {
		d.fail(l, callback, err)
	}
}

func (d *Dispatcher) fail(l SpanListener, callback string, err error) {
	d.metrics.ListenerErrors.WithLabelValues(l.Name()).Inc()
	d.logger.Error(
		"Span listener failed",
		zap.String("listener", l.Name()),
		zap.String("callback", callback),
		zap.Error(err),
	)
}
