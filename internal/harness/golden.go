package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/metrics"
)

// TraceSnapshot captures everything a scenario produced, for golden
// comparison.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Pass         bool           `json:"pass"`
	Trace        []TraceEvent   `json:"trace"`
	Stats        metrics.Report `json:"stats"`
}

// RunWithGolden executes a scenario and compares its canonical-JSON trace
// snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		Pass:         result.Pass,
		Trace:        result.Trace,
		Stats:        result.Stats,
	}
	data, err := ir.MarshalCanonical(snapshot)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}
