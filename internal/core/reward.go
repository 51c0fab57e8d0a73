package core

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxRewardRetries is the number of retry_all attempts before a pending
// reward is discarded (spec §4.5).
const MaxRewardRetries = 5

// PendingReward is a transient award-failure record awaiting retry.
type PendingReward struct {
	ID        string
	Node      [32]byte
	Amount    uint64
	TxID      TxID
	Retries   int
	CreatedAt time.Time
}

// RewardStats summarizes cumulative reward distribution activity.
type RewardStats struct {
	MicroRLTDistributed uint64
	NodesRewarded       int
	PendingCount        int
	PendingTotal        uint64
}

// RewardDistributor decides who receives reward credits for an admitted
// transaction and attempts crediting with retry (spec §4.5).
type RewardDistributor struct {
	wallet  *WalletLedger
	self    [32]byte
	metrics *Metrics

	mu           sync.Mutex
	pending      []*PendingReward
	distributed  uint64
	rewardedOnce map[[32]byte]struct{}
}

// SetMetrics attaches a Prometheus collector set. Safe to call with nil to
// detach.
func (rd *RewardDistributor) SetMetrics(m *Metrics) {
	rd.metrics = m
}

// NewRewardDistributor constructs a distributor bound to wallet, treating
// self as the local device's public key for the "don't pay yourself"
// rule.
func NewRewardDistributor(wallet *WalletLedger, self [32]byte) *RewardDistributor {
	return &RewardDistributor{
		wallet:       wallet,
		self:         self,
		rewardedOnce: make(map[[32]byte]struct{}),
	}
}

// Distribute applies the eligibility rules of spec §4.5 against tx and
// relayPath, crediting each eligible node via wallet.AwardReward. It returns
// the total µRLT credited; awards queued for retry are not counted. No final
// recipient is excluded; see DistributeWithRecipient.
func (rd *RewardDistributor) Distribute(tx SignedRelayTx, relayPath [][32]byte) (uint64, error) {
	return rd.DistributeWithRecipient(tx, relayPath, nil)
}

// DistributeWithRecipient is Distribute with an explicit final-recipient
// exclusion.
func (rd *RewardDistributor) DistributeWithRecipient(tx SignedRelayTx, relayPath [][32]byte, finalRecipient *[32]byte) (uint64, error) {
	if tx.SenderPub == rd.self {
		return 0, nil
	}

	txID := tx.ID()
	var credited uint64

	if len(relayPath) == 0 {
		ok, err := rd.award(tx.SenderPub, uint64(tx.FeePerHop), txID)
		if err != nil {
			return credited, err
		}
		if ok {
			credited += uint64(tx.FeePerHop)
		}
		return credited, nil
	}

	excluded := [][32]byte{tx.SenderPub}
	if finalRecipient != nil {
		excluded = append(excluded, *finalRecipient)
	}

	for _, node := range relayPath {
		if pathContains(excluded, node) {
			continue
		}
		ok, err := rd.award(node, uint64(tx.FeePerHop), txID)
		if err != nil {
			return credited, err
		}
		if ok {
			credited += uint64(tx.FeePerHop)
		}
	}
	return credited, nil
}

// award attempts an immediate credit and reports whether it was applied; on
// failure it is queued for retry rather than propagated, matching spec §4.5's
// "transient award failures" language. A nil wallet (misconfiguration) is
// treated as a transient failure so the caller sees consistent behavior
// either way.
func (rd *RewardDistributor) award(node [32]byte, amount uint64, txID TxID) (bool, error) {
	var err error
	if rd.wallet == nil {
		err = ErrInvalidTransaction
	} else {
		err = rd.wallet.AwardReward(node, amount, txID)
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if err != nil {
		rd.pending = append(rd.pending, &PendingReward{
			ID:        uuid.NewString(),
			Node:      node,
			Amount:    amount,
			TxID:      txID,
			CreatedAt: time.Now(),
		})
		if rd.metrics != nil {
			rd.metrics.PendingRewards.Set(float64(len(rd.pending)))
		}
		return false, nil
	}
	rd.distributed += amount
	rd.rewardedOnce[node] = struct{}{}
	if rd.metrics != nil {
		rd.metrics.RewardsDistributed.Add(float64(amount))
	}
	return true, nil
}

// RetryAll reattempts every pending reward once, incrementing its retry
// counter. Entries that fail MaxRewardRetries times are discarded.
func (rd *RewardDistributor) RetryAll() {
	rd.mu.Lock()
	pending := rd.pending
	rd.pending = nil
	rd.mu.Unlock()

	var survivors []*PendingReward
	for _, p := range pending {
		var err error
		if rd.wallet == nil {
			err = ErrInvalidTransaction
		} else {
			err = rd.wallet.AwardReward(p.Node, p.Amount, p.TxID)
		}
		if err == nil {
			rd.mu.Lock()
			rd.distributed += p.Amount
			rd.rewardedOnce[p.Node] = struct{}{}
			rd.mu.Unlock()
			if rd.metrics != nil {
				rd.metrics.RewardsDistributed.Add(float64(p.Amount))
			}
			continue
		}
		p.Retries++
		if p.Retries < MaxRewardRetries {
			survivors = append(survivors, p)
		}
	}
	rd.mu.Lock()
	rd.pending = append(survivors, rd.pending...)
	pendingCount := len(rd.pending)
	rd.mu.Unlock()
	if rd.metrics != nil {
		rd.metrics.PendingRewards.Set(float64(pendingCount))
	}
}

// Stats returns cumulative distribution statistics.
func (rd *RewardDistributor) Stats() RewardStats {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	var pendingTotal uint64
	for _, p := range rd.pending {
		pendingTotal += p.Amount
	}
	return RewardStats{
		MicroRLTDistributed: rd.distributed,
		NodesRewarded:       len(rd.rewardedOnce),
		PendingCount:        len(rd.pending),
		PendingTotal:        pendingTotal,
	}
}

// pathContains reports whether path contains pub.
func pathContains(path [][32]byte, pub [32]byte) bool {
	for _, p := range path {
		if bytes.Equal(p[:], pub[:]) {
			return true
		}
	}
	return false
}
