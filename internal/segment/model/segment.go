package model

import (
	"strconv"
	"strings"
)

type SpanType int

const (
	Entry SpanType = iota
	Exit
	Local
)

func (st SpanType) String() string {
	switch st {
	case Entry:
		return "Entry"
	case Exit:
		return "Exit"
	case Local:
		return "Local"
	default:
		return "Unknown(" + strconv.Itoa(int(st)) + ")"
	}
}

type RefType int

const (
	CrossProcess RefType = iota
	CrossThread
)

// UniqueID is a global id made of numeric parts, rendered as "a.b.c".
type UniqueID struct {
	IdParts []int64 `cbor:"id_parts" json:"id_parts"`
}

func (u UniqueID) String() string {
	parts := make([]string, len(u.IdParts))
	for i, part := range u.IdParts {
		parts[i] = strconv.FormatInt(part, 10)
	}
	return strings.Join(parts, ".")
}

// Segment is one agent-side trace segment. Name fields are what the agent knew locally,
// the matching ID fields are filled in by exchange. An ID of 0 means "not yet known".
type Segment struct {
	SegmentID           UniqueID   `cbor:"segment_id"`
	ServiceName         string     `cbor:"service_name,omitempty"`
	ServiceID           int32      `cbor:"service_id,omitempty"`
	ServiceInstanceName string     `cbor:"service_instance_name,omitempty"`
	ServiceInstanceID   int32      `cbor:"service_instance_id,omitempty"`
	Spans               []Span     `cbor:"spans"`
	GlobalTraceIDs      []UniqueID `cbor:"global_trace_ids"`
}

type Span struct {
	SpanID          int32       `cbor:"span_id"`
	ParentSpanID    int32       `cbor:"parent_span_id"`
	SpanType        SpanType    `cbor:"span_type"`
	StartTime       int64       `cbor:"start_time"`
	EndTime         int64       `cbor:"end_time"`
	OperationName   string      `cbor:"operation_name,omitempty"`
	OperationNameID int32       `cbor:"operation_name_id,omitempty"`
	ComponentID     int32       `cbor:"component_id,omitempty"`
	IsError         bool        `cbor:"is_error,omitempty"`
	Peer            string      `cbor:"peer,omitempty"`
	PeerID          int32       `cbor:"peer_id,omitempty"`
	Refs            []Reference `cbor:"refs,omitempty"`
}

type Reference struct {
	ParentTraceSegmentID UniqueID `cbor:"parent_trace_segment_id"`
	ParentSpanID         int32    `cbor:"parent_span_id"`
	ParentServiceName    string   `cbor:"parent_service_name,omitempty"`
	ParentServiceID      int32    `cbor:"parent_service_id,omitempty"`
	ParentEndpointName   string   `cbor:"parent_endpoint_name,omitempty"`
	ParentEndpointID     int32    `cbor:"parent_endpoint_id,omitempty"`
	NetworkAddress       string   `cbor:"network_address,omitempty"`
	NetworkAddressID     int32    `cbor:"network_address_id,omitempty"`
	RefType              RefType  `cbor:"ref_type"`
}

// Resolved reports whether every name carried by the reference has its ID counterpart.
func (r *Reference) Resolved() bool {
	if r.ParentServiceName != "" && r.ParentServiceID == 0 {
		return false
	}
	if r.ParentEndpointName != "" && r.ParentEndpointID == 0 {
		return false
	}
	if r.NetworkAddress != "" && r.NetworkAddressID == 0 {
		return false
	}
	return true
}

// Resolved reports whether the span and all of its references are fully numeric.
func (s *Span) Resolved() bool {
	if s.OperationName != "" && s.OperationNameID == 0 {
		return false
	}
	if s.Peer != "" && s.PeerID == 0 {
		return false
	}
	for i := range s.Refs {
		if !s.Refs[i].Resolved() {
			return false
		}
	}
	return true
}

func (s *Span) Duration() int64 {
	return s.EndTime - s.StartTime
}
