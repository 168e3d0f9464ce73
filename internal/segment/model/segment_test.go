package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueID_String(t *testing.T) {
	t.Run("Joins the id parts with dots", func(t *testing.T) {
		assert.Equal(t, "3.4.5", UniqueID{IdParts: []int64{3, 4, 5}}.String())
	})

	t.Run("Renders an empty id as an empty string", func(t *testing.T) {
		assert.Equal(t, "", UniqueID{}.String())
	})
}

func TestReference_Resolved(t *testing.T) {
	t.Run("Is unresolved while the parent service name has no id", func(t *testing.T) {
		ref := Reference{ParentServiceName: "svcX"}
		assert.False(t, ref.Resolved())
	})

	t.Run("Is resolved when every name has an id", func(t *testing.T) {
		ref := Reference{
			ParentServiceName:  "svcX",
			ParentServiceID:    2,
			ParentEndpointName: "/users",
			ParentEndpointID:   7,
			NetworkAddress:     "10.0.0.1:8080",
			NetworkAddressID:   3,
		}
		assert.True(t, ref.Resolved())
	})

	t.Run("Is resolved when only ids were sent", func(t *testing.T) {
		ref := Reference{ParentServiceID: 2, NetworkAddressID: 3}
		assert.True(t, ref.Resolved())
	})
}

func TestSpan_Resolved(t *testing.T) {
	t.Run("Is unresolved if any reference is unresolved", func(t *testing.T) {
		span := Span{
			OperationName:   "/orders",
			OperationNameID: 1,
			Refs:            []Reference{{ParentServiceName: "svcX"}},
		}
		assert.False(t, span.Resolved())
	})

	t.Run("Is unresolved if the peer has no id", func(t *testing.T) {
		span := Span{Peer: "db:5432"}
		assert.False(t, span.Resolved())
	})
}

func TestSegmentCoreInfo_Fold(t *testing.T) {
	t.Run("Keeps the min start, max end and OR of errors", func(t *testing.T) {
		sci := NewSegmentCoreInfo()
		assert.Equal(t, int64(math.MaxInt64), sci.StartTime)

		sci.Fold(&Span{StartTime: 100, EndTime: 200})
		sci.Fold(&Span{StartTime: 50, EndTime: 150, IsError: true})
		sci.Fold(&Span{StartTime: 120, EndTime: 300})

		assert.Equal(t, int64(50), sci.StartTime)
		assert.Equal(t, int64(300), sci.EndTime)
		assert.True(t, sci.IsError)
		assert.Equal(t, int64(250), sci.Latency())
	})

	t.Run("Reports zero latency before any span is folded", func(t *testing.T) {
		assert.Equal(t, int64(0), NewSegmentCoreInfo().Latency())
	})
}

func TestMinuteTimeBucket(t *testing.T) {
	t.Run("Floors to the start of the minute", func(t *testing.T) {
		assert.Equal(t, int64(1700000040000), MinuteTimeBucket(1700000075123))
		assert.Equal(t, int64(1700000040000), MinuteTimeBucket(1700000040000))
	})

	t.Run("Floors timestamps before the epoch instead of truncating", func(t *testing.T) {
		assert.Equal(t, int64(-60000), MinuteTimeBucket(-1))
		assert.Equal(t, int64(-60000), MinuteTimeBucket(-60000))
		assert.Equal(t, int64(-120000), MinuteTimeBucket(-60001))
	})
}
