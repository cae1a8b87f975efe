package alerts

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Rule is one Rego module contributing to data.alerts.alerts.
type Rule struct {
	Name   string
	Module string
}

const defaultRuleModule = `package alerts

alerts[a] {
	r := input.riders[_]
	r.cash_amount >= 120
	a := {
		"type": "cash_threshold",
		"rider_id": r.id,
		"severity": "high",
		"message": "rider cash on hand at or above the collection limit",
		"cash_amount": r.cash_amount,
	}
}

alerts[a] {
	r := input.riders[_]
	r.status == "BREAK"
	r.break_minutes > 30
	a := {
		"type": "extended_break",
		"rider_id": r.id,
		"severity": "medium",
		"message": "rider on break for over 30 minutes",
		"break_minutes": r.break_minutes,
	}
}

alerts[a] {
	r := input.riders[_]
	r.status == "OFFLINE"
	r.scheduled == true
	a := {
		"type": "offline_while_scheduled",
		"rider_id": r.id,
		"severity": "high",
		"message": "rider offline during a scheduled shift",
	}
}
`

// DefaultRules returns the stock threshold rules.
func DefaultRules() []Rule {
	return []Rule{{Name: "default", Module: defaultRuleModule}}
}

// LoadRules reads .rego rule modules from dir. An empty dir yields nil so
// callers fall back to DefaultRules.
func LoadRules(dir string) ([]Rule, error) {
	if dir == "" {
		return nil, nil
	}
	var out []Rule
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".rego" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out = append(out, Rule{Name: name, Module: string(b)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
