package alert

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"tibcore/internal/model"
)

// RuleConfig is the wire form of one alert rule, as supplied by the
// configuration interface. Invalid configs are rejected at load time and the
// prior valid rule set stays active.
type RuleConfig struct {
	ID          string          `json:"id"`
	Instruments []string        `json:"instruments,omitempty"` // empty = all instruments
	Timeframe   string          `json:"timeframe,omitempty"`   // default timeframe for condition nodes
	Condition   json.RawMessage `json:"condition" validate:"required"`
	Cooldown    string          `json:"cooldown,omitempty"`
	Priority    string          `json:"priority,omitempty" validate:"omitempty,oneof=info warning critical"`
	Enabled     *bool           `json:"enabled,omitempty"`
}

// Rule is one compiled, immutable alert rule.
type Rule struct {
	ID          string
	Instruments map[string]struct{} // empty matches every instrument
	Cond        Condition
	Cooldown    time.Duration
	Severity    model.Severity
	Enabled     bool
}

// MatchesInstrument reports whether the rule's instrument filter accepts
// inst.
func (r *Rule) MatchesInstrument(inst string) bool {
	if len(r.Instruments) == 0 {
		return true
	}
	_, ok := r.Instruments[inst]
	return ok
}

// RuleSet is an immutable compiled rule collection. Updates replace the
// whole set via atomic swap so no pipeline ever observes a partial update.
type RuleSet struct {
	Rules []*Rule
}

var ruleValidator = validator.New()

// CompileRules validates and compiles a rule config list. defaultTF applies
// to rules that omit a timeframe, defaultCooldown to rules that omit a
// cooldown. Any invalid rule fails the whole load.
func CompileRules(cfgs []RuleConfig, defaultTF, defaultCooldown time.Duration) (*RuleSet, error) {
	rules := make([]*Rule, 0, len(cfgs))
	seen := make(map[string]struct{}, len(cfgs))

	for i, cfg := range cfgs {
		if err := ruleValidator.Struct(cfg); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		id := cfg.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("rule %d: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}

		tf := defaultTF
		if cfg.Timeframe != "" {
			d, err := time.ParseDuration(cfg.Timeframe)
			if err != nil {
				return nil, fmt.Errorf("rule %q: timeframe: %w", id, err)
			}
			tf = d
		}

		cond, err := ParseCondition(cfg.Condition, tf)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", id, err)
		}

		cooldown := defaultCooldown
		if cfg.Cooldown != "" {
			d, err := time.ParseDuration(cfg.Cooldown)
			if err != nil {
				return nil, fmt.Errorf("rule %q: cooldown: %w", id, err)
			}
			if d < 0 {
				return nil, fmt.Errorf("rule %q: cooldown must not be negative", id)
			}
			cooldown = d
		}

		severity := model.SeverityInfo
		switch cfg.Priority {
		case "warning":
			severity = model.SeverityWarning
		case "critical":
			severity = model.SeverityCritical
		}

		var instruments map[string]struct{}
		if len(cfg.Instruments) > 0 {
			instruments = make(map[string]struct{}, len(cfg.Instruments))
			for _, inst := range cfg.Instruments {
				instruments[inst] = struct{}{}
			}
		}

		enabled := true
		if cfg.Enabled != nil {
			enabled = *cfg.Enabled
		}

		rules = append(rules, &Rule{
			ID:          id,
			Instruments: instruments,
			Cond:        cond,
			Cooldown:    cooldown,
			Severity:    severity,
			Enabled:     enabled,
		})
	}

	return &RuleSet{Rules: rules}, nil
}
