// Package alerts evaluates fleet alert rules, expressed as Rego policies,
// against live rider snapshots.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Alert is one triggered finding for an organization's fleet.
type Alert struct {
	Type     string         `json:"type"`
	RiderID  string         `json:"rider_id,omitempty"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// dedupCooldown suppresses re-emission of the same alert for the same rider.
const dedupCooldown = 30 * time.Minute

type Engine struct {
	rules []Rule
	rdb   *redis.Client // optional; dedup disabled when nil
	log   *zap.SugaredLogger
}

func NewEngine(rules []Rule, rdb *redis.Client, log *zap.SugaredLogger) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, rdb: rdb, log: log}
}

// Evaluate runs every rule module over the snapshot and returns the deduped
// alert set. Rule evaluation errors are logged and skipped; one broken rule
// never blocks the others.
func (e *Engine) Evaluate(ctx context.Context, orgID string, snapshot map[string]any) ([]Alert, error) {
	var out []Alert
	for _, rule := range e.rules {
		r := rego.New(
			rego.Query("data.alerts.alerts"),
			rego.Module(rule.Name+".rego", rule.Module),
			rego.Input(snapshot),
		)
		rs, err := r.Eval(ctx)
		if err != nil {
			e.log.Warnw("alert rule eval", "rule", rule.Name, "err", err)
			continue
		}
		if len(rs) == 0 || len(rs[0].Expressions) == 0 {
			continue
		}
		raw, ok := rs[0].Expressions[0].Value.([]any)
		if !ok {
			continue
		}
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			a := Alert{Data: map[string]any{}}
			for k, v := range m {
				switch k {
				case "type":
					a.Type, _ = v.(string)
				case "rider_id":
					a.RiderID = fmt.Sprint(v)
				case "severity":
					a.Severity, _ = v.(string)
				case "message":
					a.Message, _ = v.(string)
				default:
					a.Data[k] = v
				}
			}
			if a.Type == "" {
				continue
			}
			if e.suppressed(ctx, orgID, a) {
				continue
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// suppressed consults the Redis dedup key for the alert; the first emission
// within the cooldown wins.
func (e *Engine) suppressed(ctx context.Context, orgID string, a Alert) bool {
	if e.rdb == nil {
		return false
	}
	key := fmt.Sprintf("alert:%s:%s:%s", orgID, a.Type, a.RiderID)
	set, err := e.rdb.SetNX(ctx, key, 1, dedupCooldown).Result()
	if err != nil {
		e.log.Warnw("alert dedup", "err", err)
		return false
	}
	return !set
}
