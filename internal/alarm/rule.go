package alarm

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule fires when the column of a persisted row of Metric compares against Threshold.
type Rule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Column    string  `yaml:"column"`
	Op        string  `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
	// SilencePeriod is the number of minutes an entity stays quiet after firing.
	SilencePeriod int    `yaml:"silence_period"`
	Message       string `yaml:"message"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

var (
	ErrInvalidRule = errors.New("invalid alarm rule")
)

func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alarm rules %s: %w", path, err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse alarm rules: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Rules))
	for i := range file.Rules {
		rule := &file.Rules[i]
		if rule.Column == "" {
			rule.Column = "value"
		}
		if rule.Message == "" {
			rule.Message = "{name}: {metric} of {entity} is {value}"
		}
		if rule.Name == "" || rule.Metric == "" {
			return nil, fmt.Errorf("%w: rule %d needs a name and a metric", ErrInvalidRule, i)
		}
		if rule.Metric == MetricName {
			return nil, fmt.Errorf("%w: rule %s cannot watch the alarm metric itself", ErrInvalidRule, rule.Name)
		}
		if _, ok := comparators[rule.Op]; !ok {
			return nil, fmt.Errorf("%w: rule %s has unknown op %q", ErrInvalidRule, rule.Name, rule.Op)
		}
		if _, dup := seen[rule.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate rule name %s", ErrInvalidRule, rule.Name)
		}
		seen[rule.Name] = struct{}{}
	}
	return file.Rules, nil
}

var comparators = map[string]func(value float64, threshold float64) bool{
	">":  func(v, t float64) bool { return v > t },
	">=": func(v, t float64) bool { return v >= t },
	"<":  func(v, t float64) bool { return v < t },
	"<=": func(v, t float64) bool { return v <= t },
	"==": func(v, t float64) bool { return v == t },
}

func (r Rule) breached(value float64) bool {
	return comparators[r.Op](value, r.Threshold)
}
