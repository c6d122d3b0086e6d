package gateway

import (
	"fmt"
	"time"

	"tibcore/internal/alert"
	"tibcore/internal/indicator"
	"tibcore/internal/pattern"
	"tibcore/internal/supervisor"
)

// rulesPayload is the PUT /rules body: the complete replacement rule set.
type rulesPayload struct {
	Rules []alert.RuleConfig `json:"rules" binding:"required"`
}

// analysisPayload is the PUT /analysis body: the complete replacement
// analysis configuration. Applying it restarts every pipeline.
type analysisPayload struct {
	Timeframes  []string           `json:"timeframes" binding:"required,min=1"`
	Grace       string             `json:"grace,omitempty"`
	HistorySize int                `json:"history_size,omitempty"`
	Indicators  []indicator.Config `json:"indicators,omitempty"`
	Patterns    []pattern.Config   `json:"patterns,omitempty"`
}

// toConfig converts the wire payload into a supervisor analysis config.
// Duration fields use Go duration syntax ("1m", "5m", "2s").
func (p *analysisPayload) toConfig() (supervisor.AnalysisConfig, error) {
	cfg := supervisor.AnalysisConfig{
		HistorySize: p.HistorySize,
		Indicators:  p.Indicators,
		Patterns:    p.Patterns,
	}
	for _, raw := range p.Timeframes {
		tf, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("timeframe %q: %w", raw, err)
		}
		cfg.Timeframes = append(cfg.Timeframes, tf)
	}
	if p.Grace != "" {
		grace, err := time.ParseDuration(p.Grace)
		if err != nil {
			return cfg, fmt.Errorf("grace %q: %w", p.Grace, err)
		}
		cfg.Grace = grace
	}
	return cfg, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	Status string `json:"status"`
}
