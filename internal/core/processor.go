package core

import (
	"bytes"
	"crypto/ed25519"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ProcessorStats mirrors the counters exposed by the transaction processor
// (spec §4.3).
type ProcessorStats struct {
	Processed    uint64
	TotalFees    uint64
	TotalRewards uint64
	TipCount     int
}

// TransactionProcessor admits signed relay transactions into the DAG,
// triggers reward distribution, and originates outbound transactions on
// behalf of the local device (spec §4.3).
type TransactionProcessor struct {
	dag     *DAGStorage
	rewards *RewardDistributor
	metrics *Metrics
	onAdmit func(SignedRelayTx)

	processed    uint64
	totalFees    uint64
	totalRewards uint64
}

// SetMetrics attaches a Prometheus collector set. Safe to call with nil to
// detach.
func (p *TransactionProcessor) SetMetrics(m *Metrics) {
	p.metrics = m
}

// SetOnAdmit registers a callback invoked with every transaction admitted
// into the DAG, after reward distribution has run. Used to feed external
// consumers such as the inspection API's websocket event feed.
func (p *TransactionProcessor) SetOnAdmit(fn func(SignedRelayTx)) {
	p.onAdmit = fn
}

// NewTransactionProcessor constructs a processor bound to dag and rewards,
// and idempotently bootstraps the genesis transaction (OpenDAGStorage already
// does this on open, but admitting it here too keeps the processor usable
// against a DAGStorage it did not itself open).
func NewTransactionProcessor(dag *DAGStorage, rewards *RewardDistributor) (*TransactionProcessor, error) {
	p := &TransactionProcessor{dag: dag, rewards: rewards}
	if _, err := dag.Add(NewGenesisTx()); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildRelayTxParents validates an externally supplied parent list (e.g.
// from a wire message whose parent count was not statically fixed) before
// constructing a RelayTx. RelayTx itself always
// carries exactly two parents by construction, so this is the only place
// ErrInvalidParentCount can be observed.
func BuildRelayTxParents(parents []TxID) ([2]TxID, error) {
	if len(parents) != 2 {
		return [2]TxID{}, ErrInvalidParentCount
	}
	return [2]TxID{parents[0], parents[1]}, nil
}

// Admit runs the admission pipeline of spec §4.3 steps 1-8. relayPath is the
// ordered list of forwarding public keys observed for tx, or nil if unknown.
// Admitted is false, with a nil error, when tx was already present in the
// DAG (idempotent re-admission).
func (p *TransactionProcessor) Admit(tx SignedRelayTx, relayPath [][32]byte) (admitted bool, err error) {
	if !tx.Verify() {
		p.rejectMetric("invalid_signature")
		return false, ErrInvalidSignature
	}
	if tx.FeePerHop > MaxFeePerHop {
		p.rejectMetric("fee_exceeds_limit")
		return false, ErrFeeExceedsLimit
	}

	id := tx.ID()
	exists, err := p.dag.Contains(id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if !tx.IsGenesisShape() {
		for _, parent := range tx.Parents {
			has, err := p.dag.Contains(parent)
			if err != nil {
				return false, err
			}
			if !has {
				p.rejectMetric("parent_not_found")
				return false, &ParentNotFoundError{ParentID: [32]byte(parent)}
			}
		}
	}

	admitted, err = p.dag.Add(tx)
	if err != nil {
		return false, err
	}
	if !admitted {
		return false, nil
	}

	atomic.AddUint64(&p.processed, 1)
	atomic.AddUint64(&p.totalFees, uint64(tx.FeePerHop))

	if p.metrics != nil {
		p.metrics.TxAdmitted.Inc()
		if tips, err := p.dag.GetTips(); err == nil {
			p.metrics.TipCount.Set(float64(len(tips)))
		}
		if stats, err := p.dag.Stats(); err == nil {
			p.metrics.TotalWeight.Set(float64(stats.TotalWeight))
		}
	}

	if p.rewards != nil {
		credited, rerr := p.rewards.Distribute(tx, relayPath)
		if rerr != nil {
			logrus.WithError(rerr).WithField("tx_id", id).Warn("reward distribution failed; admission stands")
		} else {
			atomic.AddUint64(&p.totalRewards, credited)
		}
	}

	if p.onAdmit != nil {
		p.onAdmit(tx)
	}

	return true, nil
}

// rejectMetric records a rejection by reason, if a metrics collector is
// attached.
func (p *TransactionProcessor) rejectMetric(reason string) {
	if p.metrics != nil {
		p.metrics.TxRejected.WithLabelValues(reason).Inc()
	}
}

// CreateMessageTx originates a new signed transaction on behalf of the
// local device: it selects parents per the tip-pairing rule of spec §4.3,
// ensures genesis is present, and signs with priv. payload is opaque to the
// ledger (it rides alongside the transaction on the transport layer) and is
// accepted here only to mirror the external origination contract.
func (p *TransactionProcessor) CreateMessageTx(feePerHop uint32, priv ed25519.PrivateKey, payload []byte) (SignedRelayTx, error) {
	if _, err := p.dag.Add(NewGenesisTx()); err != nil {
		return SignedRelayTx{}, err
	}

	tips, err := p.dag.GetTips()
	if err != nil {
		return SignedRelayTx{}, err
	}
	sort.Slice(tips, func(i, j int) bool { return bytes.Compare(tips[i][:], tips[j][:]) < 0 })

	var parents [2]TxID
	switch {
	case len(tips) >= 2:
		parents = [2]TxID{tips[0], tips[1]}
	case len(tips) == 1:
		parents = [2]TxID{tips[0], GenesisTxID}
	default:
		parents = [2]TxID{GenesisTxID, GenesisTxID}
	}

	pub := priv.Public().(ed25519.PublicKey)
	var spub [32]byte
	copy(spub[:], pub)

	tx := RelayTx{Parents: parents, FeePerHop: feePerHop, SenderPub: spub}
	return tx.Sign(priv), nil
}

// Stats returns the processor's cumulative counters.
func (p *TransactionProcessor) Stats() (ProcessorStats, error) {
	tips, err := p.dag.GetTips()
	if err != nil {
		return ProcessorStats{}, err
	}
	return ProcessorStats{
		Processed:    atomic.LoadUint64(&p.processed),
		TotalFees:    atomic.LoadUint64(&p.totalFees),
		TotalRewards: atomic.LoadUint64(&p.totalRewards),
		TipCount:     len(tips),
	}, nil
}
