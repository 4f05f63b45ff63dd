package layout

import (
	"fmt"
	"math"

	"github.com/rendis/agentboard/pkg/schema"
)

// ValidationReport is the outcome of ValidateLayout.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateLayout checks that no two nodes occupy identical coordinates and
// that every coordinate is a finite, non-negative number.
func ValidateLayout(l Layout) ValidationReport {
	report := ValidationReport{Valid: true}

	occupied := make(map[schema.Position]string, len(l.Nodes))
	for _, n := range l.Nodes {
		if !finiteNonNegative(n.Position.X) || !finiteNonNegative(n.Position.Y) {
			report.Errors = append(report.Errors, fmt.Sprintf(
				"node %s has invalid coordinates (%v, %v)", n.ID, n.Position.X, n.Position.Y))
			continue
		}
		if prev, taken := occupied[n.Position]; taken {
			report.Errors = append(report.Errors, fmt.Sprintf(
				"nodes %s and %s occupy identical coordinates (%v, %v)",
				prev, n.ID, n.Position.X, n.Position.Y))
			continue
		}
		occupied[n.Position] = n.ID
	}

	report.Valid = len(report.Errors) == 0
	return report
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
