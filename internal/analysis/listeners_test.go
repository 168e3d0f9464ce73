package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Avi18971911/Tracelane/internal/meter"
	"github.com/Avi18971911/Tracelane/internal/registry"
	"github.com/Avi18971911/Tracelane/internal/segment/codec"
	"github.com/Avi18971911/Tracelane/internal/segment/exchange"
	"github.com/Avi18971911/Tracelane/internal/segment/listener"
	"github.com/Avi18971911/Tracelane/internal/segment/model"
	"github.com/Avi18971911/Tracelane/internal/segment/parser"
	"github.com/Avi18971911/Tracelane/internal/storage"
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRecordBuffer struct {
	mu      sync.Mutex
	records []storage.SegmentRecord
}

func (f *fakeRecordBuffer) WriteToBuffer(values []storage.SegmentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, values...)
}

func (f *fakeRecordBuffer) Flush(context.Context) error { return nil }

func (f *fakeRecordBuffer) Run(context.Context, time.Duration) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(string, meter.PersistedRow) error { return nil }

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(string, []byte) error { return nil }

func TestListeners(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	metrics := telemetry.NewNopMetrics()

	reg := registry.NewMemoryRegistry()
	parentID, err := reg.RegisterAndResolve(ctx, registry.ServiceScope, registry.NoParent, "gateway")
	require.NoError(t, err)

	dao := storage.NewMemoryMetricsDAO()
	ms := meter.NewMeterSystem(
		dao,
		nopPublisher{},
		meter.Config{Now: func() time.Time { return time.UnixMilli(1800000000000) }},
		metrics,
		logger,
	)
	require.NoError(t, CreateMetrics(ms))
	ms.CloseCreation()

	records := &fakeRecordBuffer{}
	manager := listener.NewManager(
		metrics,
		logger,
		NewSegmentRecordListenerFactory(records),
		NewEndpointMetricsListenerFactory(ms),
		NewServiceRelationListenerFactory(ms),
		NewServiceInstanceListenerFactory(ms),
	)
	sp := parser.NewSegmentParserImpl(exchange.NewIDExchangerImpl(reg, logger), reg, manager, nopEnqueuer{}, metrics, logger)

	segment := &model.Segment{
		SegmentID:           model.UniqueID{IdParts: []int64{3, 4, 5}},
		ServiceName:         "checkout",
		ServiceInstanceName: "checkout-1",
		GlobalTraceIDs:      []model.UniqueID{{IdParts: []int64{1, 1}}},
		Spans: []model.Span{
			{
				SpanID:        0,
				ParentSpanID:  -1,
				SpanType:      model.Entry,
				StartTime:     1700000075000,
				EndTime:       1700000075300,
				OperationName: "/pay",
				IsError:       true,
				Refs: []model.Reference{
					{ParentServiceName: "gateway", ParentEndpointName: "/", RefType: model.CrossProcess},
				},
			},
			{
				SpanID:        1,
				ParentSpanID:  0,
				SpanType:      model.Exit,
				StartTime:     1700000075100,
				EndTime:       1700000075200,
				OperationName: "SELECT",
				Peer:          "db:5432",
			},
		},
	}
	raw, err := codec.Encode(segment, codec.CompressionNone)
	require.NoError(t, err)
	require.True(t, sp.Parse(ctx, raw, parser.Agent))

	_, err = ms.Flush(ctx, true)
	require.NoError(t, err)

	serviceID, _, _ := reg.Resolve(ctx, registry.ServiceScope, registry.NoParent, "checkout")
	endpointID, _, _ := reg.Resolve(ctx, registry.EndpointScope, serviceID, "/pay")
	instanceID, _, _ := reg.Resolve(ctx, registry.ServiceInstanceScope, serviceID, "checkout-1")
	peerID, _, _ := reg.Resolve(ctx, registry.NetworkAddressScope, registry.NoParent, "db:5432")
	bucket := "1700000040000"
	stored := func(metric string, entity meter.Entity) map[string]interface{} {
		entityID, err := entity.ID()
		require.NoError(t, err)
		doc, ok := dao.Get(metric + ";minute;" + entityID + ";" + bucket)
		require.True(t, ok, "missing %s for %s", metric, entityID)
		return doc
	}

	t.Run("Records endpoint traffic from entry spans", func(t *testing.T) {
		endpoint := meter.EndpointEntity(serviceID, endpointID)
		assert.Equal(t, 1.0, stored(EndpointCpm, endpoint)["value"])
		assert.Equal(t, 300.0, stored(EndpointRespTime, endpoint)["value"])
		assert.Equal(t, 1.0, stored(EndpointError, endpoint)["value"])
		assert.Equal(t, 1.0, stored(ServiceCpm, meter.ServiceEntity(serviceID))["value"])
	})

	t.Run("Records both sides of the topology", func(t *testing.T) {
		assert.Equal(t, 1.0, stored(ServiceRelationServerCpm, meter.ServiceRelationEntity(parentID, serviceID))["value"])
		assert.Equal(t, 1.0, stored(ServiceRelationClientCpm, meter.ServiceRelationEntity(serviceID, peerID))["value"])
	})

	t.Run("Records instance traffic from the first span", func(t *testing.T) {
		assert.Equal(t, 1.0, stored(ServiceInstanceCpm, meter.ServiceInstanceEntity(serviceID, instanceID))["value"])
	})

	t.Run("Writes one segment record", func(t *testing.T) {
		require.Len(t, records.records, 1)
		record := records.records[0]
		assert.Equal(t, "3.4.5", record.Id)
		assert.Equal(t, []string{"1.1"}, record.TraceIDs)
		assert.Equal(t, endpointID, record.EndpointID)
		assert.Equal(t, "/pay", record.EndpointName)
		assert.Equal(t, int64(300), record.Latency)
		assert.True(t, record.IsError)
		assert.Equal(t, int64(1700000040000), record.TimeBucket)
		assert.Equal(t, raw, record.DataBinary)
	})
}
