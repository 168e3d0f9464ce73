package alarm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Avi18971911/Tracelane/internal/meter"
	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"go.uber.org/zap"
)

const MetricName = "alarm"

type MetricsMeter interface {
	Create(metricName string, functionName string, scope meter.ScopeType) (bool, error)
	Accept(ctx context.Context, entity meter.Entity, metricName string, value interface{}, timestamp int64) error
}

// AlarmService checks persisted minute rows against the rules. A firing becomes a sample of the
// alarm metric, so alarms are aggregated and stored like every other metric.
type AlarmService struct {
	rules     map[string][]Rule
	meter     MetricsMeter
	mu        sync.Mutex
	lastFired map[string]int64
	telemetry *telemetry.Metrics
	logger    *zap.Logger
}

func NewAlarmService(rules []Rule, meter MetricsMeter, telemetry *telemetry.Metrics, logger *zap.Logger) *AlarmService {
	byMetric := make(map[string][]Rule)
	for _, rule := range rules {
		byMetric[rule.Metric] = append(byMetric[rule.Metric], rule)
	}
	return &AlarmService{
		rules:     byMetric,
		meter:     meter,
		lastFired: make(map[string]int64),
		telemetry: telemetry,
		logger:    logger,
	}
}

func (as *AlarmService) CreateMetrics() error {
	if _, err := as.meter.Create(MetricName, meter.AlarmFunction, meter.AlarmScope); err != nil {
		return fmt.Errorf("failed to create alarm metric: %w", err)
	}
	return nil
}

// HandlePersisted is subscribed to the metrics_persisted topic.
func (as *AlarmService) HandlePersisted(row meter.PersistedRow) error {
	if row.Downsampling != meter.Minute {
		return nil
	}
	rules, ok := as.rules[row.MetricName]
	if !ok {
		return nil
	}
	for _, rule := range rules {
		raw, ok := row.Values[rule.Column]
		if !ok {
			continue
		}
		value, ok := columnValue(raw)
		if !ok || !rule.breached(value) {
			continue
		}
		if !as.shouldFire(rule, row) {
			continue
		}
		if err := as.fire(rule, row, value); err != nil {
			return err
		}
	}
	return nil
}

func columnValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (as *AlarmService) shouldFire(rule Rule, row meter.PersistedRow) bool {
	key := rule.Name + ";" + row.EntityID
	silence := int64(rule.SilencePeriod) * time.Minute.Milliseconds()
	as.mu.Lock()
	defer as.mu.Unlock()
	last, fired := as.lastFired[key]
	if fired && row.TimeBucket >= last && row.TimeBucket-last <= silence {
		return false
	}
	as.lastFired[key] = row.TimeBucket
	return true
}

func (as *AlarmService) fire(rule Rule, row meter.PersistedRow, value float64) error {
	content := strings.NewReplacer(
		"{name}", rule.Name,
		"{metric}", row.MetricName,
		"{entity}", row.EntityID,
		"{value}", strconv.FormatFloat(value, 'f', -1, 64),
		"{threshold}", strconv.FormatFloat(rule.Threshold, 'f', -1, 64),
	).Replace(rule.Message)

	as.telemetry.AlarmsFired.WithLabelValues(rule.Name).Inc()
	as.logger.Info(
		"Alarm fired",
		zap.String("rule", rule.Name),
		zap.String("entity", row.EntityID),
		zap.Float64("value", value),
	)
	err := as.meter.Accept(
		context.Background(),
		meter.AlarmEntity(rule.Name+";"+row.EntityID),
		MetricName,
		meter.AlarmMessage{Rule: rule.Name, Content: content},
		row.TimeBucket,
	)
	if err != nil {
		return fmt.Errorf("failed to record alarm %s: %w", rule.Name, err)
	}
	return nil
}
