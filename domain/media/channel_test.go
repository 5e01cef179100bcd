package media

import (
	"errors"
	"testing"

	"gomix/domain/core"
)

func TestNewChannelConfigValidatesRanges(t *testing.T) {
	cases := []struct {
		name    string
		theta   float64
		halfSat float64
		shape   float64
		wantErr error
	}{
		{"theta negative", -0.1, 100, 1, core.ErrCarryoverRange},
		{"theta one", 1.0, 100, 1, core.ErrCarryoverRange},
		{"theta above one", 1.5, 100, 1, core.ErrCarryoverRange},
		{"half-sat negative", 0.5, -1, 1, core.ErrHalfSatRange},
		{"shape zero", 0.5, 100, 0, core.ErrShapeRange},
		{"shape negative", 0.5, 100, -2, core.ErrShapeRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChannelConfig("spend_tv", tc.theta, tc.halfSat, tc.shape)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewChannelConfigAcceptsUnresolvedHalfSat(t *testing.T) {
	cfg, err := NewChannelConfig("spend_tv", 0.7, 0, 1.0)
	if err != nil {
		t.Fatalf("HalfSat 0 means derive-from-data and must be accepted: %v", err)
	}
	if cfg.BoundLow != 0.5 || cfg.BoundHigh != 0.5 {
		t.Errorf("default bounds %v/%v, want 0.5/0.5", cfg.BoundLow, cfg.BoundHigh)
	}
}

func TestWithBounds(t *testing.T) {
	cfg := MustNewChannelConfig("spend_tv", 0.5, 100, 1.0)

	tight, err := cfg.WithBounds(0.2, 0.3)
	if err != nil {
		t.Fatalf("WithBounds: %v", err)
	}
	if tight.BoundLow != 0.2 || tight.BoundHigh != 0.3 {
		t.Errorf("bounds not applied: %v/%v", tight.BoundLow, tight.BoundHigh)
	}
	if cfg.BoundLow != 0.5 {
		t.Error("WithBounds mutated the receiver")
	}

	if _, err := cfg.WithBounds(1.5, 0.5); err == nil {
		t.Error("BoundLow above 1 must be rejected")
	}
	if _, err := cfg.WithBounds(0.5, -1); err == nil {
		t.Error("negative BoundHigh must be rejected")
	}
}

func TestNewTableValidation(t *testing.T) {
	if _, err := NewTable(nil, nil); !errors.Is(err, core.ErrEmptySeries) {
		t.Errorf("empty revenue: got %v", err)
	}

	_, err := NewTable([]float64{1, 2, 3}, map[ChannelKey][]float64{"spend_tv": {1, 2}})
	if !errors.Is(err, core.ErrSeriesLength) {
		t.Errorf("ragged spend: got %v", err)
	}

	_, err = NewTable([]float64{1, 2}, map[ChannelKey][]float64{"spend_tv": {1, -2}})
	if !core.IsConfigurationError(err) {
		t.Errorf("negative spend: got %v", err)
	}
}

func TestTableAccessors(t *testing.T) {
	table, err := NewTable([]float64{1, 2, 3, 4}, map[ChannelKey][]float64{
		"spend_tv":       {1, 1, 1, 1},
		"spend_facebook": {2, 2, 2, 2},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	if table.Len() != 4 {
		t.Errorf("Len = %d, want 4", table.Len())
	}
	keys := table.Channels()
	if len(keys) != 2 || keys[0] != "spend_facebook" || keys[1] != "spend_tv" {
		t.Errorf("Channels = %v, want sorted keys", keys)
	}
	if table.TotalSpend("spend_tv") != 4 {
		t.Errorf("TotalSpend = %v, want 4", table.TotalSpend("spend_tv"))
	}
	if table.MeanSpend("spend_facebook") != 2 {
		t.Errorf("MeanSpend = %v, want 2", table.MeanSpend("spend_facebook"))
	}
	if table.HasChannel("spend_radio") {
		t.Error("HasChannel must be false for an absent channel")
	}
}
