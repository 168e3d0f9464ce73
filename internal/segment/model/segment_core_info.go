package model

import "math"

// SegmentCoreInfo is the per-parse summary handed to every listener of one segment.
type SegmentCoreInfo struct {
	SegmentID         string
	ServiceID         int32
	ServiceInstanceID int32
	StartTime         int64
	EndTime           int64
	IsError           bool
	MinuteTimeBucket  int64
	DataBinary        []byte
}

func NewSegmentCoreInfo() *SegmentCoreInfo {
	return &SegmentCoreInfo{
		StartTime: math.MaxInt64,
		EndTime:   math.MinInt64,
	}
}

// Fold widens the time range and error flag with one span.
func (sci *SegmentCoreInfo) Fold(span *Span) {
	if span.StartTime < sci.StartTime {
		sci.StartTime = span.StartTime
	}
	if span.EndTime > sci.EndTime {
		sci.EndTime = span.EndTime
	}
	sci.IsError = sci.IsError || span.IsError
}

func (sci *SegmentCoreInfo) Latency() int64 {
	if sci.EndTime < sci.StartTime {
		return 0
	}
	return sci.EndTime - sci.StartTime
}

const minuteMillis = 60_000

// MinuteTimeBucket floors epoch milliseconds to the start of their minute.
func MinuteTimeBucket(epochMillis int64) int64 {
	return FloorTimeBucket(epochMillis, minuteMillis)
}

// FloorTimeBucket rounds epoch milliseconds down to a multiple of width, before the epoch too.
func FloorTimeBucket(epochMillis int64, width int64) int64 {
	bucket := epochMillis - epochMillis%width
	if epochMillis%width < 0 {
		bucket -= width
	}
	return bucket
}
