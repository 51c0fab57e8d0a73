package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

// Difficulty bounds and adjustment window (spec §4.7).
const (
	MinDifficulty = 1
	MaxDifficulty = 8

	DifficultyWindow = 50

	cancelCheckEvery = 10_000
)

// PowResult is an accepted proof-of-work solution.
type PowResult struct {
	Nonce       uint64
	Hash        [32]byte
	Difficulty  uint8
	ComputeTime time.Duration
}

// RequiresPoW reports whether a message declaring msgFee must carry proof
// of work against a peer's advertised relayMinFee (spec §4.7).
func RequiresPoW(msgFee, relayMinFee uint32) bool {
	return msgFee < relayMinFee
}

// powDigest computes SHA-256 over message || senderPub || timestamp (LE8)
// || nonce (LE8).
func powDigest(message []byte, senderPub [32]byte, timestamp uint64, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write(message)
	h.Write(senderPub[:])
	var tsb, nb [8]byte
	binary.LittleEndian.PutUint64(tsb[:], timestamp)
	binary.LittleEndian.PutUint64(nb[:], nonce)
	h.Write(tsb[:])
	h.Write(nb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// meetsDifficulty reports whether hash has at least difficulty leading
// zero bits.
func meetsDifficulty(hash [32]byte, difficulty uint8) bool {
	fullBytes := int(difficulty) / 8
	remBits := int(difficulty) % 8
	for i := 0; i < fullBytes; i++ {
		if hash[i] != 0 {
			return false
		}
	}
	if remBits == 0 {
		return true
	}
	mask := byte(0xFF << (8 - remBits))
	return hash[fullBytes]&mask == 0
}

// Verify recomputes the digest for (message, senderPub, timestamp, result)
// and accepts iff it matches result.Hash and satisfies result.Difficulty.
func Verify(message []byte, senderPub [32]byte, timestamp uint64, result PowResult) bool {
	digest := powDigest(message, senderPub, timestamp, result.Nonce)
	if digest != result.Hash {
		return false
	}
	return meetsDifficulty(digest, result.Difficulty)
}

// Compute searches for a nonce satisfying difficulty, starting from zero.
// It checks ctx for cancellation every 10,000 iterations (spec §5).
func Compute(ctx context.Context, message []byte, senderPub [32]byte, timestamp uint64, difficulty uint8) (PowResult, error) {
	start := time.Now()
	var nonce uint64
	for {
		digest := powDigest(message, senderPub, timestamp, nonce)
		if meetsDifficulty(digest, difficulty) {
			return PowResult{Nonce: nonce, Hash: digest, Difficulty: difficulty, ComputeTime: time.Since(start)}, nil
		}
		nonce++
		if nonce%cancelCheckEvery == 0 {
			select {
			case <-ctx.Done():
				return PowResult{}, ctx.Err()
			default:
			}
		}
	}
}

// NetworkMetricsSample is one published reading of network conditions used
// to derive the PoW target time.
type NetworkMetricsSample struct {
	ActiveNodes int
	MsgsPerSec  float64
	TokenValue  uint32
	At          time.Time
}

const metricsRingSize = 100

// Engine owns the adjustable PoW difficulty and the bounded network-metrics
// history that drives it (spec §4.7).
type Engine struct {
	mu          sync.Mutex
	difficulty  uint8
	times       []time.Duration
	promMetrics *Metrics

	metrics    []NetworkMetricsSample
	metricsPos int
	latest     NetworkMetricsSample
	haveMetric bool
}

// NewEngine constructs a PoW engine starting at difficulty 1.
func NewEngine() *Engine {
	return &Engine{difficulty: MinDifficulty}
}

// SetMetrics attaches a Prometheus collector set. Safe to call with nil to
// detach.
func (e *Engine) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promMetrics = m
	if m != nil {
		m.PowDifficulty.Set(float64(e.difficulty))
	}
}

// Difficulty returns the current difficulty.
func (e *Engine) Difficulty() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.difficulty
}

// UpdateMetrics records a new network-conditions sample into the bounded
// ring buffer and as the current basis for TargetTime.
func (e *Engine) UpdateMetrics(activeNodes int, msgsPerSec float64, tokenValue uint32) {
	sample := NetworkMetricsSample{ActiveNodes: activeNodes, MsgsPerSec: msgsPerSec, TokenValue: tokenValue, At: time.Now()}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.metrics) < metricsRingSize {
		e.metrics = append(e.metrics, sample)
	} else {
		e.metrics[e.metricsPos] = sample
		e.metricsPos = (e.metricsPos + 1) % metricsRingSize
	}
	e.latest = sample
	e.haveMetric = true
}

// RecentMetrics returns a copy of the retained metrics ring buffer.
func (e *Engine) RecentMetrics() []NetworkMetricsSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]NetworkMetricsSample, len(e.metrics))
	copy(out, e.metrics)
	return out
}

// TargetTime computes T* from the most recently published network metrics
// (spec §4.7). With no metrics yet published, it uses neutral values
// (token_value=100, msgs_per_s=10, active_nodes=10), yielding the
// unscaled 2.0s baseline.
func (e *Engine) TargetTime() time.Duration {
	e.mu.Lock()
	m := e.latest
	have := e.haveMetric
	e.mu.Unlock()

	if !have {
		m = NetworkMetricsSample{ActiveNodes: 10, MsgsPerSec: 10, TokenValue: 100}
	}

	tokenValueMult := max64(1, float64(m.TokenValue)/100)
	congestionFactor := clamp(m.MsgsPerSec/10, 0.5, 3.0)
	hashRateFactor := clamp(float64(m.ActiveNodes)*10/100, 0.5, 2.0)

	target := 2.0 / (tokenValueMult * congestionFactor * hashRateFactor)
	target = clamp(target, 0.5, 10.0)
	return time.Duration(target * float64(time.Second))
}

// RecordAccepted feeds an accepted PoW's compute time into the difficulty
// adjustment window. Every DifficultyWindow accepted computations, the mean
// is compared against TargetTime and the difficulty is nudged by at most
// one step; on any change the window is cleared.
func (e *Engine) RecordAccepted(computeTime time.Duration) {
	target := e.TargetTime()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.times = append(e.times, computeTime)
	if len(e.times) < DifficultyWindow {
		return
	}

	var sum time.Duration
	for _, t := range e.times {
		sum += t
	}
	mean := sum / time.Duration(len(e.times))

	switch {
	case mean < target*6/10 && e.difficulty < MaxDifficulty:
		e.difficulty++
		e.times = nil
	case mean > target*18/10 && e.difficulty > MinDifficulty:
		e.difficulty--
		e.times = nil
	default:
		e.times = nil
	}
	if e.promMetrics != nil {
		e.promMetrics.PowDifficulty.Set(float64(e.difficulty))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
