package meter

import "fmt"

const (
	SumFunction    = "sum"
	AvgFunction    = "avg"
	LatestFunction = "latest"
	AlarmFunction  = "alarm"
)

// Function describes the columns of one kind of metric and how a sample fills them.
type Function interface {
	Name() string
	Columns() []Column
	// Sample converts one accepted value into column values of a single row.
	Sample(value interface{}, timestamp int64) (map[string]Value, error)
	// Calculate recomputes the derived columns after a merge.
	Calculate(values map[string]Value)
}

type sumFunction struct{}

func (sumFunction) Name() string { return SumFunction }

func (sumFunction) Columns() []Column {
	return []Column{{Name: "value", Type: DoubleColumn, Policy: Sum}}
}

func (sumFunction) Sample(value interface{}, _ int64) (map[string]Value, error) {
	v, err := toFloat64(value)
	if err != nil {
		return nil, err
	}
	return map[string]Value{"value": DoubleValue(v)}, nil
}

func (sumFunction) Calculate(map[string]Value) {}

type avgFunction struct{}

func (avgFunction) Name() string { return AvgFunction }

func (avgFunction) Columns() []Column {
	return []Column{
		{Name: "summation", Type: DoubleColumn, Policy: Sum},
		{Name: "count", Type: LongColumn, Policy: Sum},
		{Name: "value", Type: DoubleColumn, Policy: Cover, Derived: true},
	}
}

func (avgFunction) Sample(value interface{}, _ int64) (map[string]Value, error) {
	v, err := toFloat64(value)
	if err != nil {
		return nil, err
	}
	return map[string]Value{
		"summation": DoubleValue(v),
		"count":     LongValue(1),
	}, nil
}

func (avgFunction) Calculate(values map[string]Value) {
	count := values["count"].Long
	if count == 0 {
		return
	}
	values["value"] = DoubleValue(values["summation"].Double / float64(count))
}

type latestFunction struct{}

func (latestFunction) Name() string { return LatestFunction }

func (latestFunction) Columns() []Column {
	return []Column{{Name: "value", Type: DoubleColumn, Policy: Cover}}
}

func (latestFunction) Sample(value interface{}, _ int64) (map[string]Value, error) {
	v, err := toFloat64(value)
	if err != nil {
		return nil, err
	}
	return map[string]Value{"value": DoubleValue(v)}, nil
}

func (latestFunction) Calculate(map[string]Value) {}

// AlarmMessage is the sample accepted by alarm metrics. A plain string is taken as the content.
type AlarmMessage struct {
	Rule    string
	Content string
}

type alarmFunction struct{}

func (alarmFunction) Name() string { return AlarmFunction }

func (alarmFunction) Columns() []Column {
	return []Column{
		{Name: "rule", Type: StringColumn, Policy: NonMergeable},
		{Name: "content", Type: StringColumn, Policy: Cover},
		{Name: "count", Type: LongColumn, Policy: Sum},
	}
}

func (alarmFunction) Sample(value interface{}, _ int64) (map[string]Value, error) {
	switch v := value.(type) {
	case string:
		return map[string]Value{
			"content": StringValue(v),
			"count":   LongValue(1),
		}, nil
	case AlarmMessage:
		return map[string]Value{
			"rule":    StringValue(v.Rule),
			"content": StringValue(v.Content),
			"count":   LongValue(1),
		}, nil
	default:
		return nil, fmt.Errorf("expected an alarm message, got %T", value)
	}
}

func (alarmFunction) Calculate(map[string]Value) {}

func builtinFunctions() []Function {
	return []Function{sumFunction{}, avgFunction{}, latestFunction{}, alarmFunction{}}
}
