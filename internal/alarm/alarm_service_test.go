package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/Avi18971911/Tracelane/internal/meter"
	"github.com/Avi18971911/Tracelane/internal/storage"
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const rulesYaml = `
rules:
  - name: slow_endpoint
    metric: endpoint_resp_time
    op: ">"
    threshold: 1000
    silence_period: 2
    message: "{entity} responds in {value}ms, over {threshold}ms"
`

type nopPublisher struct{}

func (nopPublisher) Publish(string, meter.PersistedRow) error { return nil }

func TestParseRules(t *testing.T) {
	t.Run("Fills defaults", func(t *testing.T) {
		rules, err := ParseRules([]byte(rulesYaml))
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "value", rules[0].Column)
		assert.Equal(t, 1000.0, rules[0].Threshold)
		assert.Equal(t, 2, rules[0].SilencePeriod)
	})

	t.Run("Rejects unknown operators and rules on the alarm metric", func(t *testing.T) {
		_, err := ParseRules([]byte("rules:\n  - {name: a, metric: m, op: '!='}\n"))
		assert.ErrorIs(t, err, ErrInvalidRule)
		_, err = ParseRules([]byte("rules:\n  - {name: a, metric: alarm, op: '>'}\n"))
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestAlarmService_HandlePersisted(t *testing.T) {
	ctx := context.Background()
	rules, err := ParseRules([]byte(rulesYaml))
	require.NoError(t, err)

	newFixture := func() (*AlarmService, *meter.MeterSystem, *storage.MemoryMetricsDAO, *telemetry.Metrics) {
		dao := storage.NewMemoryMetricsDAO()
		metrics := telemetry.NewNopMetrics()
		ms := meter.NewMeterSystem(
			dao,
			nopPublisher{},
			meter.Config{Now: func() time.Time { return time.UnixMilli(1800000000000) }},
			metrics,
			zap.NewNop(),
		)
		as := NewAlarmService(rules, ms, metrics, zap.NewNop())
		require.NoError(t, as.CreateMetrics())
		return as, ms, dao, metrics
	}
	slowRow := func(bucket int64, value float64) meter.PersistedRow {
		return meter.PersistedRow{
			MetricName:   "endpoint_resp_time",
			EntityID:     "1_2",
			TimeBucket:   bucket,
			Downsampling: meter.Minute,
			Values:       map[string]interface{}{"value": value},
		}
	}

	t.Run("Stores an alarm row when a rule is breached", func(t *testing.T) {
		as, ms, dao, metrics := newFixture()
		require.NoError(t, as.HandlePersisted(slowRow(1700000040000, 1500)))
		_, err := ms.Flush(ctx, true)
		require.NoError(t, err)

		stored, ok := dao.Get("alarm;minute;slow_endpoint;1_2;1700000040000")
		require.True(t, ok)
		assert.Equal(t, "slow_endpoint", stored["rule"])
		assert.Equal(t, "1_2 responds in 1500ms, over 1000ms", stored["content"])
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlarmsFired.WithLabelValues("slow_endpoint")))
	})

	t.Run("Stays quiet below the threshold and during the silence period", func(t *testing.T) {
		as, _, _, metrics := newFixture()
		require.NoError(t, as.HandlePersisted(slowRow(1700000040000, 900)))
		require.NoError(t, as.HandlePersisted(slowRow(1700000040000, 1500)))
		require.NoError(t, as.HandlePersisted(slowRow(1700000100000, 1500)))
		require.NoError(t, as.HandlePersisted(slowRow(1700000160000, 1500)))
		require.NoError(t, as.HandlePersisted(slowRow(1700000220000, 1500)))
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AlarmsFired.WithLabelValues("slow_endpoint")))
	})

	t.Run("Ignores other downsamplings", func(t *testing.T) {
		as, _, _, metrics := newFixture()
		row := slowRow(1699999200000, 5000)
		row.Downsampling = meter.Hour
		require.NoError(t, as.HandlePersisted(row))
		assert.Zero(t, testutil.ToFloat64(metrics.AlarmsFired.WithLabelValues("slow_endpoint")))
	})

	t.Run("Compares integer columns against the threshold", func(t *testing.T) {
		as, _, _, metrics := newFixture()
		row := slowRow(1700000040000, 0)
		row.Values = map[string]interface{}{"value": int64(1500)}
		require.NoError(t, as.HandlePersisted(row))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlarmsFired.WithLabelValues("slow_endpoint")))
	})
}
