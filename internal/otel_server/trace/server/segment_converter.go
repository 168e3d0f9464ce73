package server

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"github.com/cespare/xxhash/v2"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	"go.opentelemetry.io/proto/otlp/trace/v1"
)

// Attributes a caller may propagate so the callee can name its parent.
const (
	parentServiceAttribute  = "tracelane.parent.service"
	parentEndpointAttribute = "tracelane.parent.endpoint"
)

func getServiceName(resourceSpan *v1.ResourceSpans) string {
	return getResourceAttribute(resourceSpan, "service.name")
}

func getResourceAttribute(resourceSpan *v1.ResourceSpans, key string) string {
	if resourceSpan.Resource == nil {
		return ""
	}
	return getAttribute(resourceSpan.Resource.Attributes, key)
}

func getAttribute(attributes []*commonv1.KeyValue, key string) string {
	for _, attr := range attributes {
		if attr.Key == key {
			return attr.Value.GetStringValue()
		}
	}
	return ""
}

// toSegments groups the spans of one resource by trace. Each group becomes one segment whose
// spans are numbered by start time, so the earliest span is span 0.
func toSegments(resourceSpan *v1.ResourceSpans, serviceName string) []*model.Segment {
	byTrace := make(map[string][]*v1.Span)
	var traceOrder []string
	for _, scopeSpan := range resourceSpan.ScopeSpans {
		for _, span := range scopeSpan.Spans {
			traceID := hex.EncodeToString(span.TraceId)
			if _, ok := byTrace[traceID]; !ok {
				traceOrder = append(traceOrder, traceID)
			}
			byTrace[traceID] = append(byTrace[traceID], span)
		}
	}

	instanceName := getResourceAttribute(resourceSpan, "service.instance.id")
	segments := make([]*model.Segment, 0, len(byTrace))
	for _, traceKey := range traceOrder {
		spans := byTrace[traceKey]
		sort.SliceStable(spans, func(i, j int) bool {
			return spans[i].StartTimeUnixNano < spans[j].StartTimeUnixNano
		})
		traceID := toUniqueID(spans[0].TraceId)
		segments = append(segments, &model.Segment{
			SegmentID:           getSegmentID(serviceName, instanceName, spans),
			ServiceName:         serviceName,
			ServiceInstanceName: instanceName,
			Spans:               toSpans(spans),
			GlobalTraceIDs:      []model.UniqueID{traceID},
		})
	}
	return segments
}

func toSpans(spans []*v1.Span) []model.Span {
	index := make(map[string]int32, len(spans))
	for i, span := range spans {
		index[hex.EncodeToString(span.SpanId)] = int32(i)
	}

	converted := make([]model.Span, len(spans))
	for i, span := range spans {
		parent, local := index[hex.EncodeToString(span.ParentSpanId)]
		if !local {
			parent = -1
		}
		converted[i] = model.Span{
			SpanID:        int32(i),
			ParentSpanID:  parent,
			SpanType:      getSpanType(span.Kind),
			StartTime:     int64(span.StartTimeUnixNano / 1_000_000),
			EndTime:       int64(span.EndTimeUnixNano / 1_000_000),
			OperationName: span.Name,
			IsError:       span.Status != nil && span.Status.Code == v1.Status_STATUS_CODE_ERROR,
		}
		if converted[i].SpanType == model.Exit {
			converted[i].Peer = getPeer(span.Attributes)
		}
		if !local && len(span.ParentSpanId) > 0 && converted[i].SpanType == model.Entry {
			if ref, ok := getReference(span); ok {
				converted[i].Refs = []model.Reference{ref}
			}
		}
	}
	return converted
}

func getSpanType(kind v1.Span_SpanKind) model.SpanType {
	switch kind {
	case v1.Span_SPAN_KIND_SERVER, v1.Span_SPAN_KIND_CONSUMER:
		return model.Entry
	case v1.Span_SPAN_KIND_CLIENT, v1.Span_SPAN_KIND_PRODUCER:
		return model.Exit
	default:
		return model.Local
	}
}

func getPeer(attributes []*commonv1.KeyValue) string {
	if peer := getAttribute(attributes, "peer.service"); peer != "" {
		return peer
	}
	host := getAttribute(attributes, "server.address")
	if host == "" {
		host = getAttribute(attributes, "net.peer.name")
	}
	if host == "" {
		return ""
	}
	for _, attr := range attributes {
		if attr.Key == "server.port" || attr.Key == "net.peer.port" {
			return host + ":" + portString(attr.Value)
		}
	}
	return host
}

func portString(value *commonv1.AnyValue) string {
	if s := value.GetStringValue(); s != "" {
		return s
	}
	return strconv.FormatInt(value.GetIntValue(), 10)
}

func getReference(span *v1.Span) (model.Reference, bool) {
	ref := model.Reference{
		ParentTraceSegmentID: toUniqueID(span.TraceId),
		ParentSpanID:         -1,
		ParentServiceName:    getAttribute(span.Attributes, parentServiceAttribute),
		ParentEndpointName:   getAttribute(span.Attributes, parentEndpointAttribute),
		NetworkAddress:       getAttribute(span.Attributes, "client.address"),
		RefType:              model.CrossProcess,
	}
	if ref.ParentServiceName == "" && ref.ParentEndpointName == "" && ref.NetworkAddress == "" {
		return model.Reference{}, false
	}
	return ref, true
}

func toUniqueID(id []byte) model.UniqueID {
	padded := make([]byte, 16)
	copy(padded[16-min(len(id), 16):], id)
	return model.UniqueID{IdParts: []int64{
		int64(binary.BigEndian.Uint64(padded[:8])),
		int64(binary.BigEndian.Uint64(padded[8:])),
	}}
}

// getSegmentID identifies the spans of one trace exported together by one service instance.
// Redelivering the same spans yields the same id, another batch of the trace a different one.
func getSegmentID(serviceName string, instanceName string, spans []*v1.Span) model.UniqueID {
	spanIDs := make([]string, len(spans))
	for i, span := range spans {
		spanIDs[i] = string(span.SpanId)
	}
	sort.Strings(spanIDs)

	digest := xxhash.New()
	_, _ = digest.WriteString(serviceName)
	_, _ = digest.WriteString("/")
	_, _ = digest.WriteString(instanceName)
	for _, spanID := range spanIDs {
		_, _ = digest.WriteString("/")
		_, _ = digest.WriteString(spanID)
	}
	owner := int64(digest.Sum64() & 0x7fffffffffffffff)
	trace := toUniqueID(spans[0].TraceId)
	return model.UniqueID{IdParts: []int64{owner, trace.IdParts[0], trace.IdParts[1]}}
}
