// Package strategy parses declarative strategy documents and evaluates their
// entry/exit rules against indicator data. Documents are YAML or JSON:
//
//	entry_rules:
//	  - name: trend_follow
//	    rules:
//	      - {indicator: close, comparator: ">", value: ema_20}
//	exit_rules:
//	  hard_stop_loss_pct: 5
//	  hard_take_profit_pct: 20
//	  signals:
//	    - name: trend_break
//	      rules:
//	        - {indicator: close, comparator: "<", value: ema_20}
//	position_sizing:
//	  method: percent_of_equity
//	  value: 25
//
// Entry scenarios OR together; conditions inside a scenario AND together.
// A condition's value side may be a number, an indicator name, or an
// arithmetic expression over indicator names.
package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Comparators accepted in a condition.
var validComparators = map[string]struct{}{
	"<": {}, ">": {}, "<=": {}, ">=": {}, "==": {}, "!=": {},
}

// Operand is a condition side as written in the document: a literal number,
// an indicator name, or an arithmetic expression.
type Operand struct {
	Raw string
}

// UnmarshalYAML accepts any scalar and keeps its textual form.
func (o *Operand) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("condition operand must be a scalar, got %v", node.Kind)
	}
	o.Raw = strings.TrimSpace(node.Value)
	return nil
}

// Literal returns the operand as a number when it is one.
func (o Operand) Literal() (float64, bool) {
	v, err := strconv.ParseFloat(o.Raw, 64)
	return v, err == nil
}

// Condition is one boolean test: indicator <comparator> value.
type Condition struct {
	Indicator  string  `yaml:"indicator"`
	Comparator string  `yaml:"comparator"`
	Value      Operand `yaml:"value"`
}

// Scenario is an AND-combined list of conditions with a display name.
type Scenario struct {
	Name  string      `yaml:"name"`
	Rules []Condition `yaml:"rules"`
}

// ExitRules gathers the hard stop/target percentages and the ordered exit
// scenarios.
type ExitRules struct {
	HardStopLossPct   float64    `yaml:"hard_stop_loss_pct"`
	HardTakeProfitPct float64    `yaml:"hard_take_profit_pct"`
	Signals           []Scenario `yaml:"signals"`
}

// PositionSizing names the sizing method and its parameter.
type PositionSizing struct {
	Method string  `yaml:"method"`
	Value  float64 `yaml:"value"`
}

// Config is a parsed strategy document.
type Config struct {
	Name           string         `yaml:"name"`
	EntryRules     []Scenario     `yaml:"entry_rules"`
	ExitRules      ExitRules      `yaml:"exit_rules"`
	PositionSizing PositionSizing `yaml:"position_sizing"`
}

// ParseDocument decodes a YAML or JSON strategy document. Structural problems
// are configuration errors; indicator-name validation happens separately when
// the evaluator binds the document to data.
func ParseDocument(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse strategy document: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) check() error {
	if len(c.EntryRules) == 0 {
		return fmt.Errorf("strategy document has no entry_rules")
	}
	for si, sc := range c.EntryRules {
		if err := checkScenario("entry", si, sc); err != nil {
			return err
		}
	}
	for si, sc := range c.ExitRules.Signals {
		if err := checkScenario("exit", si, sc); err != nil {
			return err
		}
	}
	if c.ExitRules.HardStopLossPct < 0 || c.ExitRules.HardTakeProfitPct < 0 {
		return fmt.Errorf("hard stop/target percentages must be non-negative")
	}
	if c.PositionSizing.Method == "" {
		c.PositionSizing = PositionSizing{Method: "percent_of_equity", Value: 25}
	}
	switch c.PositionSizing.Method {
	case "percent_of_equity":
		if c.PositionSizing.Value <= 0 || c.PositionSizing.Value > 100 {
			return fmt.Errorf("position_sizing value %.2f out of (0,100]", c.PositionSizing.Value)
		}
	default:
		return fmt.Errorf("unsupported position_sizing method %q", c.PositionSizing.Method)
	}
	return nil
}

func checkScenario(kind string, i int, sc Scenario) error {
	if len(sc.Rules) == 0 {
		return fmt.Errorf("%s scenario %d (%q) has no rules", kind, i, sc.Name)
	}
	for ri, cond := range sc.Rules {
		if cond.Indicator == "" {
			return fmt.Errorf("%s scenario %q rule %d: missing indicator", kind, sc.Name, ri)
		}
		if _, ok := validComparators[cond.Comparator]; !ok {
			return fmt.Errorf("%s scenario %q rule %d: invalid comparator %q", kind, sc.Name, ri, cond.Comparator)
		}
		if cond.Value.Raw == "" {
			return fmt.Errorf("%s scenario %q rule %d: missing value", kind, sc.Name, ri)
		}
	}
	return nil
}
