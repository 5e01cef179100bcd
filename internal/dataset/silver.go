package dataset

import (
	"go.uber.org/zap"

	"gomix/domain/core"
	"gomix/domain/media"
)

// CleanReport records what the silver stage changed or rejected.
type CleanReport struct {
	Rows           int
	ClippedSpend   int
	ClippedRevenue int
}

// Clean validates a bronze table into a silver media.Table: all series must be
// non-empty and equal length, and negative values are clipped to zero with a
// count in the report. Structural problems are errors, not repairs.
func Clean(b Bronze, logger *zap.Logger) (*media.Table, CleanReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var report CleanReport

	n := len(b.Revenue)
	if n == 0 {
		return nil, report, core.ErrEmptySeries
	}
	report.Rows = n

	revenue := make([]float64, n)
	for t, v := range b.Revenue {
		if v < 0 {
			v = 0
			report.ClippedRevenue++
		}
		revenue[t] = v
	}

	spend := make(map[media.ChannelKey][]float64, len(b.Spend))
	for key, series := range b.Spend {
		if len(series) != n {
			return nil, report, core.NewLengthMismatchError(string(key), len(series), n)
		}
		cleaned := make([]float64, n)
		for t, v := range series {
			if v < 0 {
				v = 0
				report.ClippedSpend++
			}
			cleaned[t] = v
		}
		spend[key] = cleaned
	}

	table, err := media.NewTable(revenue, spend)
	if err != nil {
		return nil, report, err
	}

	if report.ClippedSpend > 0 || report.ClippedRevenue > 0 {
		logger.Warn("clipped negative values during cleaning",
			zap.Int("spend_cells", report.ClippedSpend),
			zap.Int("revenue_cells", report.ClippedRevenue))
	}
	return table, report, nil
}
