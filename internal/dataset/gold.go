package dataset

import (
	"github.com/montanaflynn/stats"

	"gomix/domain/core"
	"gomix/domain/media"
	"gomix/internal/transform"
)

// ResolveHalfSat fills in unresolved half-saturation points. A channel config
// with HalfSat == 0 gets the mean of its carryover-adjusted spend, so the
// saturation midpoint sits at a typical exposure level for that channel.
// Configs with an explicit HalfSat pass through unchanged.
func ResolveHalfSat(table *media.Table, cfgs []media.ChannelConfig) ([]media.ChannelConfig, error) {
	out := make([]media.ChannelConfig, len(cfgs))
	for i, cfg := range cfgs {
		if cfg.HalfSat > 0 {
			out[i] = cfg
			continue
		}
		series, ok := table.Spend[cfg.Key]
		if !ok {
			return nil, core.NewUnknownChannelError(string(cfg.Key))
		}
		decayed, err := transform.Adstock(series, cfg.Theta)
		if err != nil {
			return nil, err
		}
		mean, err := stats.Mean(decayed)
		if err != nil || mean <= 0 {
			return nil, core.NewConfigurationError(string(cfg.Key),
				"cannot derive a half-saturation point from all-zero spend")
		}
		resolved := cfg
		resolved.HalfSat = mean
		out[i] = resolved
	}
	return out, nil
}

// AggregateWeekly sums a daily table into weekly grain. A trailing partial
// week is dropped so every aggregated step covers the same number of days.
func AggregateWeekly(table *media.Table) (*media.Table, error) {
	const daysPerWeek = 7
	weeks := table.Len() / daysPerWeek
	if weeks == 0 {
		return nil, core.NewConfigurationError("aggregate", "need at least seven rows for one week")
	}

	sumWeeks := func(series []float64) []float64 {
		out := make([]float64, weeks)
		for w := 0; w < weeks; w++ {
			for d := 0; d < daysPerWeek; d++ {
				out[w] += series[w*daysPerWeek+d]
			}
		}
		return out
	}

	revenue := sumWeeks(table.Revenue)
	spend := make(map[media.ChannelKey][]float64, len(table.Spend))
	for key, series := range table.Spend {
		spend[key] = sumWeeks(series)
	}
	return media.NewTable(revenue, spend)
}
