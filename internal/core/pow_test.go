package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequiresPoWInvariant(t *testing.T) {
	if RequiresPoW(100, 50) {
		t.Fatalf("fee above relay minimum must not require PoW")
	}
	if !RequiresPoW(10, 50) {
		t.Fatalf("fee below relay minimum must require PoW")
	}
	if RequiresPoW(50, 50) {
		t.Fatalf("fee equal to relay minimum must not require PoW")
	}
}

func TestMeetsDifficultyBoundaryCases(t *testing.T) {
	var zeroHash [32]byte
	if !meetsDifficulty(zeroHash, 16) {
		t.Fatalf("all-zero hash must satisfy any difficulty up to 256 bits")
	}

	hash := [32]byte{0x00, 0x40} // 9 leading zero bits
	if !meetsDifficulty(hash, 9) {
		t.Fatalf("expected 9 leading zero bits to satisfy difficulty 9")
	}
	if meetsDifficulty(hash, 10) {
		t.Fatalf("expected 9 leading zero bits to fail difficulty 10")
	}
}

func TestComputeAndVerifyRoundTrip(t *testing.T) {
	msg := []byte("hello mesh")
	var sender [32]byte
	sender[0] = 0x01
	result, err := Compute(context.Background(), msg, sender, 1000, 8)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !Verify(msg, sender, 1000, result) {
		t.Fatalf("expected computed result to verify")
	}

	tampered := result
	tampered.Nonce++
	if Verify(msg, sender, 1000, tampered) {
		t.Fatalf("expected tampered nonce to invalidate result")
	}
}

func TestComputeRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sender [32]byte
	// Difficulty high enough that the search won't finish before the first
	// cancellation check at 10,000 iterations.
	_, err := Compute(ctx, []byte("x"), sender, 1, 64)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEngineStartsAtMinDifficulty(t *testing.T) {
	e := NewEngine()
	if e.Difficulty() != MinDifficulty {
		t.Fatalf("expected initial difficulty %d, got %d", MinDifficulty, e.Difficulty())
	}
}

func TestEngineTargetTimeDefaultsToTwoSeconds(t *testing.T) {
	e := NewEngine()
	got := e.TargetTime()
	if got != 2*time.Second {
		t.Fatalf("expected default target time of 2s, got %v", got)
	}
}

func TestEngineTargetTimeClampsToBounds(t *testing.T) {
	e := NewEngine()
	e.UpdateMetrics(1000, 1000, 10000) // drives target far below 0.5s floor
	if got := e.TargetTime(); got != 500*time.Millisecond {
		t.Fatalf("expected target time clamped to 0.5s floor, got %v", got)
	}

	e2 := NewEngine()
	// Every factor at its floor: 2s / (1 * 0.5 * 0.5) = 8s, the largest
	// target the clamped factors allow (below the 10s ceiling).
	e2.UpdateMetrics(1, 1, 1)
	if got := e2.TargetTime(); got != 8*time.Second {
		t.Fatalf("expected target time of 8s with all factors at their floors, got %v", got)
	}
}

// TestDifficultyIncreasesUnderFastComputation covers scenario S6's fast leg:
// 50 accepted results at 0.2s under a 2s target should raise difficulty.
func TestDifficultyIncreasesUnderFastComputation(t *testing.T) {
	e := NewEngine()
	for i := 0; i < DifficultyWindow; i++ {
		e.RecordAccepted(200 * time.Millisecond)
	}
	if e.Difficulty() != MinDifficulty+1 {
		t.Fatalf("expected difficulty to increase by one step, got %d", e.Difficulty())
	}
}

// TestDifficultyDecreasesUnderSlowComputation covers scenario S6's slow leg:
// 50 accepted results at 4s under a 2s target should lower difficulty.
func TestDifficultyDecreasesUnderSlowComputation(t *testing.T) {
	e := NewEngine()
	e.difficulty = MinDifficulty + 2
	for i := 0; i < DifficultyWindow; i++ {
		e.RecordAccepted(4 * time.Second)
	}
	if e.Difficulty() != MinDifficulty+1 {
		t.Fatalf("expected difficulty to decrease by one step, got %d", e.Difficulty())
	}
}

func TestEngineRecordsDifficultyMetric(t *testing.T) {
	e := NewEngine()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	e.SetMetrics(metrics)

	if got := testutil.ToFloat64(metrics.PowDifficulty); got != MinDifficulty {
		t.Fatalf("expected initial pow_difficulty=%d, got %v", MinDifficulty, got)
	}

	for i := 0; i < DifficultyWindow; i++ {
		e.RecordAccepted(200 * time.Millisecond)
	}
	if got := testutil.ToFloat64(metrics.PowDifficulty); got != float64(MinDifficulty+1) {
		t.Fatalf("expected pow_difficulty=%d after increase, got %v", MinDifficulty+1, got)
	}
}

func TestDifficultyNeverExceedsBounds(t *testing.T) {
	e := NewEngine()
	e.difficulty = MaxDifficulty
	for round := 0; round < 5; round++ {
		for i := 0; i < DifficultyWindow; i++ {
			e.RecordAccepted(1 * time.Millisecond)
		}
	}
	if e.Difficulty() != MaxDifficulty {
		t.Fatalf("expected difficulty to stay clamped at %d, got %d", MaxDifficulty, e.Difficulty())
	}
}

func TestMetricsRingBufferBounded(t *testing.T) {
	e := NewEngine()
	for i := 0; i < metricsRingSize+25; i++ {
		e.UpdateMetrics(i, float64(i), uint32(i))
	}
	metrics := e.RecentMetrics()
	if len(metrics) != metricsRingSize {
		t.Fatalf("expected metrics ring bounded to %d, got %d", metricsRingSize, len(metrics))
	}
}
