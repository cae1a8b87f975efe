package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleSnapshot() map[string]any {
	return map[string]any{
		"riders": []any{
			map[string]any{"id": "r-1", "status": "WORKING"},
			map[string]any{"id": "r-2", "status": "WORKING"},
			map[string]any{"id": "r-3", "status": "AVAILABLE"},
			map[string]any{"id": "r-4", "status": "BREAK"},
		},
		"companies": []any{
			map[string]any{"id": 1, "name": "Speedy"},
			map[string]any{"id": 2, "name": "Nimbus"},
		},
	}
}

func TestComputeDefaults(t *testing.T) {
	e := NewEngine(nil, zap.NewNop().Sugar())
	out := e.Compute(sampleSnapshot())

	assert.EqualValues(t, 4, out["total_riders"])
	assert.EqualValues(t, 2, out["active_riders"])
	assert.EqualValues(t, 1, out["available_riders"])
	assert.EqualValues(t, 1, out["riders_on_break"])
	assert.EqualValues(t, 2, out["companies_count"])
	assert.NotEmpty(t, out["timestamp"])
}

func TestComputeEmptySnapshot(t *testing.T) {
	e := NewEngine(nil, zap.NewNop().Sugar())
	out := e.Compute(map[string]any{})

	assert.EqualValues(t, 0, out["total_riders"])
	assert.EqualValues(t, 0, out["companies_count"])
}

func TestComputeCustomDefinitions(t *testing.T) {
	defs := []KPIDefinition{
		{Name: "cash_heavy", Expression: "length(riders[?cash_amount > `100`] || `[]`)"},
		{Name: "broken", Expression: "riders[?"},
	}
	e := NewEngine(defs, zap.NewNop().Sugar())
	out := e.Compute(map[string]any{
		"riders": []any{
			map[string]any{"id": "r-1", "cash_amount": 150.0},
			map[string]any{"id": "r-2", "cash_amount": 40.0},
		},
	})

	require.Contains(t, out, "cash_heavy")
	assert.EqualValues(t, 1, out["cash_heavy"])
	// malformed expression falls back to zero instead of failing the batch
	assert.EqualValues(t, 0, out["broken"])
}
