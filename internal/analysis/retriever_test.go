package analysis

import (
	"math"
	"testing"
)

func fptr(v float64) *float64 { return &v }

func TestPatternStats(t *testing.T) {
	hits := []SimilarHit{
		{NewsID: 1, Changes: map[string]*float64{"1d": fptr(2.0), "5d": fptr(4.0)}},
		{NewsID: 2, Changes: map[string]*float64{"1d": fptr(-1.0), "5d": nil}},
		{NewsID: 3, Changes: map[string]*float64{"1d": fptr(0), "5d": fptr(6.0)}}, // exact zero ignored
	}
	stats := PatternStats(hits)

	d1, ok := stats["1d"]
	if !ok {
		t.Fatal("missing 1d stats")
	}
	if d1.Count != 2 {
		t.Fatalf("1d count = %d, want 2 (zero excluded)", d1.Count)
	}
	if math.Abs(d1.Mean-0.5) > 1e-9 || d1.Max != 2.0 || d1.Min != -1.0 {
		t.Fatalf("1d stats = %+v", d1)
	}

	d5 := stats["5d"]
	if d5.Count != 2 || math.Abs(d5.Mean-5.0) > 1e-9 {
		t.Fatalf("5d stats = %+v", d5)
	}

	if _, ok := stats["20d"]; ok {
		t.Fatal("horizons with no samples must be absent")
	}
}

func TestPatternStatsEmpty(t *testing.T) {
	if stats := PatternStats(nil); len(stats) != 0 {
		t.Fatalf("empty hits should give empty stats, got %+v", stats)
	}
}
