package meter

import (
	"errors"
	"fmt"
)

// Row is the aggregate of one metric for one entity in one time bucket.
type Row struct {
	MetricName   string
	EntityID     string
	TimeBucket   int64
	Downsampling Downsampling
	Values       map[string]Value
	function     Function
}

func newRow(metricName string, entityID string, bucket int64, downsampling Downsampling, function Function) *Row {
	return &Row{
		MetricName:   metricName,
		EntityID:     entityID,
		TimeBucket:   bucket,
		Downsampling: downsampling,
		Values:       make(map[string]Value),
		function:     function,
	}
}

// ID is the storage key: metric;downsampling;entity;bucket
func (r *Row) ID() string {
	return fmt.Sprintf("%s;%s;%s;%d", r.MetricName, r.Downsampling, r.EntityID, r.TimeBucket)
}

func (r *Row) Columns() []Column {
	return r.function.Columns()
}

func (r *Row) Get(column string) (Value, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Merge folds other into r column by column, other being the newer side. NonMergeable
// conflicts keep r's value; every conflict is reported in the returned error but all other
// columns are still merged.
func (r *Row) Merge(other *Row) error {
	return r.mergeValues(other.Values)
}

func (r *Row) mergeValues(values map[string]Value) error {
	var conflicts []error
	for _, column := range r.function.Columns() {
		if column.Derived {
			continue
		}
		incoming, ok := values[column.Name]
		if !ok {
			continue
		}
		current, exists := r.Values[column.Name]
		if !exists {
			r.Values[column.Name] = incoming
			continue
		}
		switch column.Policy {
		case Sum:
			r.Values[column.Name] = add(column, current, incoming)
		case Cover:
			r.Values[column.Name] = incoming
		case NonMergeable:
			if current != incoming {
				conflicts = append(conflicts, fmt.Errorf("%w: column %s of %s", ErrNonMergeableConflict, column.Name, r.ID()))
			}
		}
	}
	r.function.Calculate(r.Values)
	return errors.Join(conflicts...)
}

func (r *Row) clone() *Row {
	c := newRow(r.MetricName, r.EntityID, r.TimeBucket, r.Downsampling, r.function)
	for k, v := range r.Values {
		c.Values[k] = v
	}
	return c
}

// Encode renders the column values for storage.
func (r *Row) Encode() map[string]interface{} {
	encoded := make(map[string]interface{}, len(r.Values))
	for _, column := range r.function.Columns() {
		if v, ok := r.Values[column.Name]; ok {
			encoded[column.Name] = encodeValue(column, v)
		}
	}
	return encoded
}

func (r *Row) decode(encoded map[string]interface{}) error {
	for _, column := range r.function.Columns() {
		raw, ok := encoded[column.Name]
		if !ok || raw == nil {
			continue
		}
		v, err := decodeValue(column, raw)
		if err != nil {
			return fmt.Errorf("failed to decode stored row %s: %w", r.ID(), err)
		}
		r.Values[column.Name] = v
	}
	return nil
}

// PersistedRow is published on the event bus after a row reached storage.
type PersistedRow struct {
	MetricName   string                 `json:"metric_name"`
	EntityID     string                 `json:"entity_id"`
	TimeBucket   int64                  `json:"time_bucket"`
	Downsampling Downsampling           `json:"downsampling"`
	Values       map[string]interface{} `json:"values"`
}

func (r *Row) persisted() PersistedRow {
	return PersistedRow{
		MetricName:   r.MetricName,
		EntityID:     r.EntityID,
		TimeBucket:   r.TimeBucket,
		Downsampling: r.Downsampling,
		Values:       r.Encode(),
	}
}
