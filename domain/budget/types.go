package budget

import (
	"math"
	"sort"

	"gomix/domain/core"
	"gomix/domain/media"
)

// Allocation maps channels to proposed per-step spend.
//
// INVARIANTS (checked by Validate):
// - sum over channels equals the current total spend (reallocation, not a
//   budget change), within relative tolerance
// - every value is >= 0 and within its channel's configured bounds
type Allocation map[media.ChannelKey]float64

// Total sums the allocation across channels.
func (a Allocation) Total() float64 {
	sum := 0.0
	for _, v := range a {
		sum += v
	}
	return sum
}

// Channels returns allocation keys in deterministic order.
func (a Allocation) Channels() []media.ChannelKey {
	keys := make([]media.ChannelKey, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Validate checks the budget-preservation and bounds invariants against the
// current allocation. relTol is the relative tolerance on the budget sum.
func (a Allocation) Validate(current Allocation, bounds map[media.ChannelKey][2]float64, relTol float64) error {
	budget := current.Total()
	if budget <= 0 {
		return core.NewConfigurationError("allocation", "current budget must be > 0")
	}
	if math.Abs(a.Total()-budget) > relTol*budget {
		return core.NewConfigurationError("allocation", "total spend not preserved")
	}
	for key, v := range a {
		if v < 0 {
			return core.NewConfigurationError(string(key), "allocation must be non-negative")
		}
		if b, ok := bounds[key]; ok {
			if v < b[0]-relTol*budget || v > b[1]+relTol*budget {
				return core.NewConfigurationError(string(key), "allocation outside channel bounds")
			}
		}
	}
	return nil
}

// OptimizationResult is the optimizer's full outcome: the proposed
// allocation, projected revenue at that allocation, revenue at the current
// allocation, and the solver's convergence status.
type OptimizationResult struct {
	Allocation       Allocation       `json:"allocation"`
	BaselineRevenue  float64          `json:"baseline_revenue"`
	OptimizedRevenue float64          `json:"optimized_revenue"`
	Status           core.SolveStatus `json:"status"`
	Iterations       int              `json:"iterations"`
}

// Lift is the projected revenue gain over the current allocation, computed
// from the unscaled objective.
func (r OptimizationResult) Lift() float64 {
	return r.OptimizedRevenue - r.BaselineRevenue
}
