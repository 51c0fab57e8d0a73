package core

import "testing"

func TestFeeCalculateSizeAndHopComponents(t *testing.T) {
	fc := NewFeeCalculator()
	// size fee: ceil(2048/1024)*1000 = 2000, hop fee: 3*100 = 300, base 2300.
	got := fc.Calculate(2048, 3, PriorityNormal, nil)
	if got != 2300 {
		t.Fatalf("expected 2300, got %d", got)
	}
}

func TestFeeCalculatePriorityMultiplier(t *testing.T) {
	fc := NewFeeCalculator()
	low := fc.Calculate(1024, 1, PriorityLow, nil)
	normal := fc.Calculate(1024, 1, PriorityNormal, nil)
	high := fc.Calculate(1024, 1, PriorityHigh, nil)
	urgent := fc.Calculate(1024, 1, PriorityUrgent, nil)

	if !(low < normal && normal < high && high < urgent) {
		t.Fatalf("expected strictly increasing fees by priority: low=%d normal=%d high=%d urgent=%d", low, normal, high, urgent)
	}
}

func TestFeeCalculateCongestionMultiplier(t *testing.T) {
	fc := NewFeeCalculator()
	base := fc.Calculate(1024, 1, PriorityNormal, nil)
	congested := fc.Calculate(1024, 1, PriorityNormal, &NetworkConditions{Congestion: 1.0})
	if congested != base*3 {
		t.Fatalf("expected congestion=1.0 to triple the fee (1+2*1), got base=%d congested=%d", base, congested)
	}
}

func TestFeeCalculateHighPriorityLatencyMultiplier(t *testing.T) {
	fc := NewFeeCalculator()
	withoutLatency := fc.Calculate(1024, 1, PriorityHigh, &NetworkConditions{})
	withLatency := fc.Calculate(1024, 1, PriorityHigh, &NetworkConditions{AvgLatencySec: 1.0})
	if withLatency <= withoutLatency {
		t.Fatalf("expected latency penalty to increase fee for high priority: without=%d with=%d", withoutLatency, withLatency)
	}

	// The latency multiplier only applies to PriorityHigh, not others.
	normalWithLatency := fc.Calculate(1024, 1, PriorityNormal, &NetworkConditions{AvgLatencySec: 1.0})
	normalWithoutLatency := fc.Calculate(1024, 1, PriorityNormal, &NetworkConditions{})
	if normalWithLatency != normalWithoutLatency {
		t.Fatalf("latency multiplier must not apply outside PriorityHigh")
	}
}

func TestFeeCalculateFloorsAtMinimum(t *testing.T) {
	fc := NewFeeCalculator()
	got := fc.Calculate(0, 0, PriorityLow, nil)
	if got != MinTotalFeeMicroRLT {
		t.Fatalf("expected floor of %d, got %d", MinTotalFeeMicroRLT, got)
	}
}

func TestAdaptiveBaseFeeFallsBackWithoutHistory(t *testing.T) {
	fc := NewFeeCalculator()
	if got := fc.AdaptiveBaseFee(); got != StaticHopFeeMicroRLT {
		t.Fatalf("expected static fallback %d, got %d", StaticHopFeeMicroRLT, got)
	}
}

func TestAdaptiveBaseFeeUsesLast100Observations(t *testing.T) {
	fc := NewFeeCalculator()
	// Push 50 observations of 1000 that should be pushed out of the window.
	for i := 0; i < 50; i++ {
		fc.Observe(1000)
	}
	// Push 100 observations of 500 that form the effective window.
	for i := 0; i < 100; i++ {
		fc.Observe(500)
	}
	got := fc.AdaptiveBaseFee()
	want := uint64(500 * 0.8)
	if got != want {
		t.Fatalf("expected adaptive fee %d from last-100 window, got %d", want, got)
	}
}

func TestAdaptiveBaseFeeHistoryIsBounded(t *testing.T) {
	fc := NewFeeCalculator()
	for i := 0; i < maxFeeHistory+500; i++ {
		fc.Observe(uint64(i))
	}
	if len(fc.history) != maxFeeHistory {
		t.Fatalf("expected history bounded to %d, got %d", maxFeeHistory, len(fc.history))
	}
}
