package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AnchorStatus is the state of a candidate anchor (spec §4.8).
type AnchorStatus string

const (
	AnchorPending   AnchorStatus = "pending"
	AnchorConfirmed AnchorStatus = "confirmed"
	AnchorFailed    AnchorStatus = "failed"
)

// Default anchoring schedule parameters (spec §4.8).
const (
	DefaultAnchorInterval    = 3600 * time.Second
	DefaultMinAnchorInterval = 1800 * time.Second
	DefaultMinTxForAnchor    = 10
)

const anchorRingSize = 100

// AnchorMeta is passed to the external submission collaborator alongside
// the root bytes.
type AnchorMeta struct {
	TxCount   uint64
	Timestamp time.Time
}

// AnchorRecord is one candidate anchor tracked by the ring buffer.
type AnchorRecord struct {
	ID               string
	Root             [32]byte
	TxCount          uint64
	Timestamp        time.Time
	Status           AnchorStatus
	ConfirmationTime *time.Time
}

// SubmitFunc is the external collaborator contract for committing a root to
// an external timestamping network (spec §6's request_anchor_submission).
// It returns a channel that resolves exactly once with the outcome.
type SubmitFunc func(ctx context.Context, root [32]byte, meta AnchorMeta) (<-chan bool, error)

// AnchoringService periodically commits the DAG's deterministic root to an
// external network via Submit, tracking candidate state in a bounded ring
// buffer (spec §4.8).
type AnchoringService struct {
	dag     *DAGStorage
	submit  SubmitFunc
	metrics *Metrics

	interval       time.Duration
	minInterval    time.Duration
	minTxForAnchor int

	mu          sync.Mutex
	ring        []AnchorRecord
	lastAnchor  *AnchorRecord
	lastTxCount uint64
}

// SetMetrics attaches a Prometheus collector set. Safe to call with nil to
// detach.
func (a *AnchoringService) SetMetrics(m *Metrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = m
}

// NewAnchoringService constructs a service with the spec's default
// scheduling parameters; zero-value interval/minInterval/minTx are replaced
// by their defaults.
func NewAnchoringService(dag *DAGStorage, submit SubmitFunc, interval, minInterval time.Duration, minTxForAnchor int) *AnchoringService {
	if interval <= 0 {
		interval = DefaultAnchorInterval
	}
	if minInterval <= 0 {
		minInterval = DefaultMinAnchorInterval
	}
	if minTxForAnchor <= 0 {
		minTxForAnchor = DefaultMinTxForAnchor
	}
	return &AnchoringService{
		dag:            dag,
		submit:         submit,
		interval:       interval,
		minInterval:    minInterval,
		minTxForAnchor: minTxForAnchor,
	}
}

// ComputeRoot derives the deterministic stats-root: SHA-256 over
// total_tx_count_le8 || tip_count_le8 || total_weight_le8 ||
// concat(sorted(tip_ids)) (spec §4.8).
func (a *AnchoringService) ComputeRoot() ([32]byte, error) {
	stats, err := a.dag.Stats()
	if err != nil {
		return [32]byte{}, err
	}
	tips, err := a.dag.GetTips()
	if err != nil {
		return [32]byte{}, err
	}
	sort.Slice(tips, func(i, j int) bool {
		for k := 0; k < 32; k++ {
			if tips[i][k] != tips[j][k] {
				return tips[i][k] < tips[j][k]
			}
		}
		return false
	})

	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(stats.Total))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(stats.TipCount))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], stats.TotalWeight)
	h.Write(buf[:])
	for _, id := range tips {
		h.Write(id[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// ShouldAnchor evaluates the conditions of spec §4.8 against now.
func (a *AnchoringService) ShouldAnchor(now time.Time) (bool, [32]byte, error) {
	root, err := a.ComputeRoot()
	if err != nil {
		return false, root, err
	}

	a.mu.Lock()
	last := a.lastAnchor
	lastTxCount := a.lastTxCount
	a.mu.Unlock()

	stats, err := a.dag.Stats()
	if err != nil {
		return false, root, err
	}

	if last != nil && now.Sub(last.Timestamp) < a.minInterval {
		return false, root, nil
	}
	if last != nil && last.Root == root {
		return false, root, nil
	}
	if uint64(stats.Total)-lastTxCount < uint64(a.minTxForAnchor) {
		return false, root, nil
	}
	return true, root, nil
}

// Attempt evaluates ShouldAnchor and, if eligible, submits root via submit,
// recording a pending AnchorRecord and resolving it asynchronously when the
// submission channel fires.
func (a *AnchoringService) Attempt(ctx context.Context, now time.Time) (*AnchorRecord, error) {
	ok, root, err := a.ShouldAnchor(now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	stats, err := a.dag.Stats()
	if err != nil {
		return nil, err
	}

	record := AnchorRecord{
		ID:        uuid.NewString(),
		Root:      root,
		TxCount:   uint64(stats.Total),
		Timestamp: now,
		Status:    AnchorPending,
	}
	a.pushRecord(record)

	resultCh, err := a.submit(ctx, root, AnchorMeta{TxCount: record.TxCount, Timestamp: now})
	if err != nil {
		a.resolve(record.ID, AnchorFailed, now)
		a.incAttempt(AnchorFailed)
		return a.find(record.ID), err
	}

	go func() {
		select {
		case ok := <-resultCh:
			status := AnchorFailed
			if ok {
				status = AnchorConfirmed
			}
			a.resolve(record.ID, status, time.Now())
			a.incAttempt(status)
		case <-ctx.Done():
			logrus.WithField("anchor_id", record.ID).Warn("anchoring: context cancelled before submission resolved")
		}
	}()

	return a.find(record.ID), nil
}

// Run drives Attempt on the service's configured interval until ctx is
// cancelled.
func (a *AnchoringService) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if _, err := a.Attempt(ctx, t); err != nil {
				logrus.WithError(err).Warn("anchoring: attempt failed")
			}
		}
	}
}

func (a *AnchoringService) incAttempt(status AnchorStatus) {
	a.mu.Lock()
	m := a.metrics
	a.mu.Unlock()
	if m != nil {
		m.AnchorAttempts.WithLabelValues(string(status)).Inc()
	}
}

func (a *AnchoringService) pushRecord(r AnchorRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ring = append(a.ring, r)
	if len(a.ring) > anchorRingSize {
		a.ring = a.ring[len(a.ring)-anchorRingSize:]
	}
}

func (a *AnchoringService) resolve(id string, status AnchorStatus, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.ring {
		if a.ring[i].ID != id {
			continue
		}
		a.ring[i].Status = status
		if status == AnchorConfirmed {
			t := at
			a.ring[i].ConfirmationTime = &t
			rec := a.ring[i]
			a.lastAnchor = &rec
			a.lastTxCount = rec.TxCount
		}
		return
	}
}

func (a *AnchoringService) find(id string) *AnchorRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.ring {
		if a.ring[i].ID == id {
			rec := a.ring[i]
			return &rec
		}
	}
	return nil
}

// Recent returns a copy of the ring buffer, most recent last.
func (a *AnchoringService) Recent() []AnchorRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AnchorRecord, len(a.ring))
	copy(out, a.ring)
	return out
}

// VerifyIntegrity accepts iff the current root equals the latest confirmed
// anchor's root, or the DAG has grown without shrinking since that anchor
// (descendant-by-growth rule, spec §4.8).
func (a *AnchoringService) VerifyIntegrity() (bool, error) {
	root, err := a.ComputeRoot()
	if err != nil {
		return false, err
	}
	stats, err := a.dag.Stats()
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	last := a.lastAnchor
	a.mu.Unlock()
	if last == nil {
		return false, nil
	}
	if root == last.Root {
		return true, nil
	}
	return uint64(stats.Total) >= last.TxCount, nil
}
