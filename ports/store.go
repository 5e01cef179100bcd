package ports

import (
	"context"

	"gomix/domain/budget"
	"gomix/domain/core"
)

// RunRecord is the persistable summary of a pipeline run.
type RunRecord struct {
	RunID     core.RunID
	Seed      int64
	FitStatus core.FitStatus
	Result    budget.OptimizationResult
	RuntimeMs int64
	CreatedAt core.Timestamp
}

// RunStore persists pipeline run results for later reporting.
type RunStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id core.RunID) (*RunRecord, error)
}
