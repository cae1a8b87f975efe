// Package analytics computes dashboard KPIs from live rider snapshots using
// configurable JMESPath extractions.
package analytics

import (
	"time"

	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"
)

// KPIDefinition maps one KPI name to a JMESPath expression evaluated against
// the merged live snapshot ({"riders": [...], "companies": [...]}).
type KPIDefinition struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// DefaultDefinitions mirror the dashboard's stock KPI set.
func DefaultDefinitions() []KPIDefinition {
	return []KPIDefinition{
		{Name: "total_riders", Expression: "length(riders || `[]`)"},
		{Name: "active_riders", Expression: "length(riders[?status=='WORKING'] || `[]`)"},
		{Name: "available_riders", Expression: "length(riders[?status=='AVAILABLE'] || `[]`)"},
		{Name: "riders_on_break", Expression: "length(riders[?status=='BREAK'] || `[]`)"},
		{Name: "companies_count", Expression: "length(companies || `[]`)"},
	}
}

type Engine struct {
	defs []KPIDefinition
	log  *zap.SugaredLogger
}

func NewEngine(defs []KPIDefinition, log *zap.SugaredLogger) *Engine {
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}
	return &Engine{defs: defs, log: log}
}

// Compute evaluates every definition against the snapshot. Expressions that
// fail or yield null resolve to 0 so one bad mapping never hides the rest.
func (e *Engine) Compute(snapshot map[string]any) map[string]any {
	out := map[string]any{}
	for _, d := range e.defs {
		v, err := jmes.Search(d.Expression, snapshot)
		if err != nil {
			e.log.Warnw("kpi expression", "name", d.Name, "err", err)
			out[d.Name] = 0
			continue
		}
		if v == nil {
			v = 0
		}
		out[d.Name] = v
	}
	out["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return out
}
