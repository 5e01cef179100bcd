package experiment

import (
	"gomix/domain/core"
	"gomix/domain/media"
)

// Estimate is the unbiased causal return-on-spend measured by a controlled
// experiment. Produced once per experiment run; immutable.
type Estimate struct {
	Channel    media.ChannelKey `json:"channel"`
	ROAS       float64          `json:"roas"`
	StdError   float64          `json:"std_error"`
	SampleSize int              `json:"sample_size"`
	PValue     float64          `json:"p_value"` // two-sided, H0: no incremental effect
}

// Valid checks the estimate carries a usable uncertainty.
func (e Estimate) Valid() error {
	if e.Channel == "" {
		return core.NewConfigurationError("estimate", "channel must be set")
	}
	// Written so NaN fails too: NaN compares false against everything.
	if !(e.StdError > 0) {
		return core.NewConfigurationError("estimate", "standard error must be > 0")
	}
	if e.SampleSize <= 0 {
		return core.NewConfigurationError("estimate", "sample size must be > 0")
	}
	return nil
}

// RegionSeries is one region's observed revenue and the targeted channel's
// spend over the same time steps.
type RegionSeries struct {
	Region  string
	Revenue []float64
	Spend   []float64
}
