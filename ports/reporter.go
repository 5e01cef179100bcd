package ports

import (
	"gomix/domain/budget"
	"gomix/domain/model"
)

// ReportWriter renders a run's posterior and allocation for out-of-scope
// reporting consumers.
type ReportWriter interface {
	WriteReport(path string, posterior *model.Posterior, result budget.OptimizationResult, current budget.Allocation) error
}
