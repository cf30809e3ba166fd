package utils

import (
	"math"
	"testing"
)

// floatTolerance - допуск на ошибку округления float64 в сравнениях.
const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= floatTolerance
}

func TestRoundToPriceStep(t *testing.T) {
	cases := map[string]struct {
		price, step, want float64
	}{
		"exact match":      {289.13, 0.01, 289.13},
		"round down":       {289.137, 0.01, 289.13},
		"half ruble step":  {7514.3, 0.5, 7514.0},
		"whole ruble step": {180.7, 1.0, 180.0},
		"zero price":       {0, 0.01, 0},
		"zero step":        {289.137, 0, 289.137},
		"negative step":    {289.137, -0.01, 289.137},
		"expensive stock":  {28954.37, 0.5, 28954.0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := RoundToPriceStep(tc.price, tc.step); !floatEquals(got, tc.want) {
				t.Errorf("RoundToPriceStep(%v, %v) = %v, want %v", tc.price, tc.step, got, tc.want)
			}
		})
	}
}

func TestRoundToPriceStepNearest(t *testing.T) {
	cases := map[string]struct {
		price, step, want float64
	}{
		"exact match":  {289.13, 0.01, 289.13},
		"round up":     {289.137, 0.01, 289.14},
		"round down":   {289.132, 0.01, 289.13},
		"half step up": {7514.3, 0.5, 7514.5},
		"zero step":    {289.137, 0, 289.137},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := RoundToPriceStepNearest(tc.price, tc.step); !floatEquals(got, tc.want) {
				t.Errorf("RoundToPriceStepNearest(%v, %v) = %v, want %v", tc.price, tc.step, got, tc.want)
			}
		})
	}
}

func TestPositionValue(t *testing.T) {
	cases := map[string]struct {
		lots        int
		price, want float64
	}{
		"long position":              {10, 289.5, 2895.0},
		"short position is positive": {-5, 100.0, 500.0},
		"single lot":                 {1, 7514.0, 7514.0},
		"zero lots":                  {0, 289.5, 0},
		"zero price":                 {10, 0, 0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := PositionValue(tc.lots, tc.price); !floatEquals(got, tc.want) {
				t.Errorf("PositionValue(%d, %v) = %v, want %v", tc.lots, tc.price, got, tc.want)
			}
		})
	}
}

func TestLotsForBudget(t *testing.T) {
	cases := map[string]struct {
		budget, lotPrice float64
		want             int
	}{
		"fits exactly":     {10000, 2500, 4},
		"rounds down":      {100000, 28950, 3},
		"budget too small": {5000, 7514, 0},
		"one lot":          {7600, 7514, 1},
		"zero budget":      {0, 2500, 0},
		"negative budget":  {-1000, 2500, 0},
		"zero price":       {10000, 0, 0},
		"negative price":   {10000, -2500, 0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := LotsForBudget(tc.budget, tc.lotPrice); got != tc.want {
				t.Errorf("LotsForBudget(%v, %v) = %d, want %d", tc.budget, tc.lotPrice, got, tc.want)
			}
		})
	}
}

func TestRealizedPnl(t *testing.T) {
	cases := map[string]struct {
		quantity          int
		entry, exit, want float64
	}{
		"long profit":   {10, 280, 290, 100},
		"long loss":     {10, 280, 275, -50},
		"short profit":  {-10, 280, 270, 100},
		"short loss":    {-10, 280, 285, -50},
		"flat exit":     {10, 280, 280, 0},
		"zero quantity": {0, 280, 290, 0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := RealizedPnl(tc.quantity, tc.entry, tc.exit); !floatEquals(got, tc.want) {
				t.Errorf("RealizedPnl(%d, %v, %v) = %v, want %v", tc.quantity, tc.entry, tc.exit, got, tc.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	cases := map[string]struct {
		value, lo, hi, want float64
	}{
		"inside range": {50, 0, 100, 50},
		"below min":    {-5, 0, 100, 0},
		"above max":    {120, 0, 100, 100},
		"at min":       {0, 0, 100, 0},
		"at max":       {100, 0, 100, 100},
		"unit range":   {1.4, 0, 1, 1},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Clamp(tc.value, tc.lo, tc.hi); !floatEquals(got, tc.want) {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tc.value, tc.lo, tc.hi, got, tc.want)
			}
		})
	}
}
