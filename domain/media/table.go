package media

import (
	"fmt"
	"sort"

	"gomix/domain/core"
)

// Table is the read-only modeling input: a per-time-step revenue series and
// per-channel spend series of equal length. Supplied once per run; stages
// never mutate it.
type Table struct {
	Revenue []float64
	Spend   map[ChannelKey][]float64
}

// NewTable validates that every spend series matches the revenue length.
func NewTable(revenue []float64, spend map[ChannelKey][]float64) (*Table, error) {
	if len(revenue) == 0 {
		return nil, fmt.Errorf("%w: revenue", core.ErrEmptySeries)
	}
	for key, series := range spend {
		if len(series) != len(revenue) {
			return nil, core.NewLengthMismatchError(string(key), len(series), len(revenue))
		}
		for t, v := range series {
			if v < 0 {
				return nil, core.NewConfigurationError(string(key), fmt.Sprintf("negative spend %v at step %d", v, t))
			}
		}
	}
	return &Table{Revenue: revenue, Spend: spend}, nil
}

// Len returns the number of time steps.
func (t *Table) Len() int { return len(t.Revenue) }

// Channels returns the channel keys in deterministic order.
func (t *Table) Channels() []ChannelKey {
	keys := make([]ChannelKey, 0, len(t.Spend))
	for k := range t.Spend {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// HasChannel reports whether the table carries a spend series for key.
func (t *Table) HasChannel(key ChannelKey) bool {
	_, ok := t.Spend[key]
	return ok
}

// TotalSpend sums a channel's spend over all time steps.
func (t *Table) TotalSpend(key ChannelKey) float64 {
	sum := 0.0
	for _, v := range t.Spend[key] {
		sum += v
	}
	return sum
}

// MeanSpend returns a channel's average per-step spend.
func (t *Table) MeanSpend(key ChannelKey) float64 {
	return t.TotalSpend(key) / float64(t.Len())
}
