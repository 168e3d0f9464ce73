package meter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Avi18971911/Tracelane/internal/telemetry"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const flushTimeOut = 10 * time.Second

var (
	ErrCreationClosed       = errors.New("metric creation is closed")
	ErrUnknownFunction      = errors.New("unknown meter function")
	ErrUnknownMetric        = errors.New("unknown metric")
	ErrScopeMismatch        = errors.New("entity scope does not match the metric scope")
	ErrInvalidEntity        = errors.New("invalid entity")
	ErrNonMergeableConflict = errors.New("conflicting values for a non mergeable column")
)

type Config struct {
	Shards        int
	Downsamplings []Downsampling
	// Now is the clock used to decide which buckets are closed. Defaults to time.Now.
	Now func() time.Time
}

type metricDefinition struct {
	name     string
	function Function
	scope    ScopeType
}

type shard struct {
	mu   sync.Mutex
	rows map[string]*Row
}

// MeterSystem aggregates samples into time bucketed rows and flushes closed buckets to storage.
// Metrics are defined up front with Create; CloseCreation freezes the set.
type MeterSystem struct {
	functions map[string]Function

	defMu   sync.RWMutex
	metrics map[string]metricDefinition
	closed  bool

	shards        []*shard
	downsamplings []Downsampling
	now           func() time.Time
	flushMu       sync.Mutex

	dao       MetricsDAO
	publisher Publisher
	telemetry *telemetry.Metrics
	logger    *zap.Logger
}

func NewMeterSystem(
	dao MetricsDAO,
	publisher Publisher,
	cfg Config,
	telemetry *telemetry.Metrics,
	logger *zap.Logger,
) *MeterSystem {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if len(cfg.Downsamplings) == 0 {
		cfg.Downsamplings = []Downsampling{Minute}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{rows: make(map[string]*Row)}
	}
	ms := &MeterSystem{
		functions:     make(map[string]Function),
		metrics:       make(map[string]metricDefinition),
		shards:        shards,
		downsamplings: cfg.Downsamplings,
		now:           cfg.Now,
		dao:           dao,
		publisher:     publisher,
		telemetry:     telemetry,
		logger:        logger,
	}
	for _, fn := range builtinFunctions() {
		ms.functions[fn.Name()] = fn
	}
	return ms
}

// Create defines a metric. It returns false when the name is already taken.
func (ms *MeterSystem) Create(metricName string, functionName string, scope ScopeType) (bool, error) {
	function, ok := ms.functions[functionName]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownFunction, functionName)
	}
	ms.defMu.Lock()
	defer ms.defMu.Unlock()
	if ms.closed {
		return false, ErrCreationClosed
	}
	if _, exists := ms.metrics[metricName]; exists {
		return false, nil
	}
	ms.metrics[metricName] = metricDefinition{name: metricName, function: function, scope: scope}
	ms.logger.Info(
		"Created metric",
		zap.String("metric", metricName),
		zap.String("function", functionName),
		zap.String("scope", scope.String()),
	)
	return true, nil
}

func (ms *MeterSystem) CloseCreation() {
	ms.defMu.Lock()
	defer ms.defMu.Unlock()
	ms.closed = true
}

// Accept merges one sample into the row of every configured downsampling.
func (ms *MeterSystem) Accept(
	_ context.Context,
	entity Entity,
	metricName string,
	value interface{},
	timestamp int64,
) error {
	ms.defMu.RLock()
	definition, ok := ms.metrics[metricName]
	ms.defMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, metricName)
	}
	if entity.Scope != definition.scope {
		return fmt.Errorf("%w: metric %s is %s, entity is %s", ErrScopeMismatch, metricName, definition.scope, entity.Scope)
	}
	entityID, err := entity.ID()
	if err != nil {
		return err
	}
	sample, err := definition.function.Sample(value, timestamp)
	if err != nil {
		return fmt.Errorf("invalid sample for metric %s: %w", metricName, err)
	}

	for _, downsampling := range ms.downsamplings {
		row := newRow(metricName, entityID, downsampling.Bucket(timestamp), downsampling, definition.function)
		if err := row.mergeValues(sample); err != nil {
			return err
		}
		ms.mergeIntoShard(row)
	}
	ms.telemetry.MeterSamples.WithLabelValues(metricName).Inc()
	return nil
}

// mergeIntoShard folds row into the in-memory row with the same id. row is treated as newer.
func (ms *MeterSystem) mergeIntoShard(row *Row) {
	id := row.ID()
	s := ms.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[id]
	if !ok {
		s.rows[id] = row
		return
	}
	if err := existing.Merge(row); err != nil {
		ms.logger.Warn("Kept first value of non mergeable column", zap.String("row", id), zap.Error(err))
	}
}

func (ms *MeterSystem) shardFor(id string) *shard {
	return ms.shards[xxhash.Sum64String(id)%uint64(len(ms.shards))]
}

// Flush persists every row whose bucket is closed, or every row when force is set. Each flushed
// row is combined with what storage already holds before it is written. When storage fails the
// rows go back into memory and the error is returned, so a sample is written at least once.
func (ms *MeterSystem) Flush(ctx context.Context, force bool) (int, error) {
	ms.flushMu.Lock()
	defer ms.flushMu.Unlock()

	rows := ms.takeRows(force)
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID()
	}
	existing, err := ms.dao.ReadExisting(ctx, ids)
	if err != nil {
		ms.restore(rows)
		ms.telemetry.MeterFlushErrors.Add(float64(len(rows)))
		return 0, fmt.Errorf("failed to read existing metrics: %w", err)
	}

	combined := make([]*Row, 0, len(rows))
	for _, row := range rows {
		stored, ok := existing[row.ID()]
		if !ok {
			combined = append(combined, row.clone())
			continue
		}
		persisted := newRow(row.MetricName, row.EntityID, row.TimeBucket, row.Downsampling, row.function)
		if err := persisted.decode(stored); err != nil {
			ms.logger.Error("Overwriting unreadable stored row", zap.String("row", row.ID()), zap.Error(err))
			combined = append(combined, row.clone())
			continue
		}
		if err := persisted.Merge(row); err != nil {
			ms.logger.Warn("Kept stored value of non mergeable column", zap.String("row", row.ID()), zap.Error(err))
		}
		combined = append(combined, persisted)
	}

	if err = ms.dao.Persist(ctx, combined); err != nil {
		ms.restore(rows)
		ms.telemetry.MeterFlushErrors.Add(float64(len(rows)))
		return 0, fmt.Errorf("failed to persist metrics: %w", err)
	}
	ms.telemetry.MeterRowsFlushed.Add(float64(len(combined)))

	for _, row := range combined {
		if err := ms.publisher.Publish(MetricsPersistedTopic, row.persisted()); err != nil {
			ms.logger.Error("Failed to publish persisted row", zap.String("row", row.ID()), zap.Error(err))
		}
	}
	return len(combined), nil
}

func (ms *MeterSystem) takeRows(force bool) []*Row {
	now := ms.now()
	var taken []*Row
	for _, s := range ms.shards {
		s.mu.Lock()
		for id, row := range s.rows {
			if force || row.Downsampling.Closed(row.TimeBucket, now) {
				taken = append(taken, row)
				delete(s.rows, id)
			}
		}
		s.mu.Unlock()
	}
	return taken
}

// restore puts unflushed rows back. Samples that arrived meanwhile are newer and merged on top.
func (ms *MeterSystem) restore(rows []*Row) {
	for _, row := range rows {
		id := row.ID()
		s := ms.shardFor(id)
		s.mu.Lock()
		if newer, ok := s.rows[id]; ok {
			if err := row.Merge(newer); err != nil {
				ms.logger.Warn("Kept first value of non mergeable column", zap.String("row", id), zap.Error(err))
			}
		}
		s.rows[id] = row
		s.mu.Unlock()
	}
}

// Run flushes closed buckets every interval and flushes everything once ctx is done.
func (ms *MeterSystem) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeOut)
			defer cancel()
			if _, err := ms.Flush(flushCtx, true); err != nil {
				return fmt.Errorf("final metrics flush failed: %w", err)
			}
			return nil
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(ctx, flushTimeOut)
			n, err := ms.Flush(flushCtx, false)
			cancel()
			if err != nil {
				ms.logger.Error("Failed to flush metrics", zap.Error(err))
				continue
			}
			if n > 0 {
				ms.logger.Debug("Flushed metrics", zap.Int("rows", n))
			}
		}
	}
}
