package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestAnchoringService(t *testing.T, submit SubmitFunc, minTx int) (*AnchoringService, *DAGStorage) {
	t.Helper()
	dag := newTestDAG(t, 0)
	svc := NewAnchoringService(dag, submit, time.Hour, 0, minTx)
	return svc, dag
}

func admitN(t *testing.T, dag *DAGStorage, n int) {
	t.Helper()
	pub, priv := mustKeyPair(t)
	prev := GenesisTxID
	for i := 0; i < n; i++ {
		tx := RelayTx{Parents: [2]TxID{prev, prev}, FeePerHop: uint32(i + 1), SenderPub: toPub32(pub)}.Sign(priv)
		if _, err := dag.Add(tx); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		prev = tx.ID()
	}
}

func TestComputeRootIsDeterministic(t *testing.T) {
	svc, dag := newTestAnchoringService(t, nil, 1)
	admitN(t, dag, 3)

	root1, err := svc.ComputeRoot()
	if err != nil {
		t.Fatalf("compute root: %v", err)
	}
	root2, err := svc.ComputeRoot()
	if err != nil {
		t.Fatalf("compute root: %v", err)
	}
	if root1 != root2 {
		t.Fatalf("expected deterministic root across repeated calls")
	}
}

func TestShouldAnchorRequiresMinTxSinceLastAnchor(t *testing.T) {
	svc, dag := newTestAnchoringService(t, nil, 10)
	admitN(t, dag, 2)

	ok, _, err := svc.ShouldAnchor(time.Now())
	if err != nil {
		t.Fatalf("should anchor: %v", err)
	}
	if ok {
		t.Fatalf("expected insufficient tx count to block anchoring")
	}
}

func TestAttemptMovesToConfirmedOnSuccess(t *testing.T) {
	resultCh := make(chan bool, 1)
	submit := func(ctx context.Context, root [32]byte, meta AnchorMeta) (<-chan bool, error) {
		resultCh <- true
		return resultCh, nil
	}
	svc, dag := newTestAnchoringService(t, submit, 1)
	admitN(t, dag, 2)

	rec, err := svc.Attempt(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a pending-or-resolved record")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		recent := svc.Recent()
		if len(recent) == 1 && recent[0].Status == AnchorConfirmed {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected anchor to resolve to confirmed")
}

func TestAttemptMovesToFailedOnSubmitError(t *testing.T) {
	submit := func(ctx context.Context, root [32]byte, meta AnchorMeta) (<-chan bool, error) {
		return nil, ErrInvalidTransaction
	}
	svc, dag := newTestAnchoringService(t, submit, 1)
	admitN(t, dag, 2)

	rec, err := svc.Attempt(context.Background(), time.Now())
	if err == nil {
		t.Fatalf("expected submit error to propagate")
	}
	if rec == nil || rec.Status != AnchorFailed {
		t.Fatalf("expected failed record, got %+v", rec)
	}
}

func TestAttemptRecordsAnchorAttemptMetric(t *testing.T) {
	submit := func(ctx context.Context, root [32]byte, meta AnchorMeta) (<-chan bool, error) {
		return nil, ErrInvalidTransaction
	}
	svc, dag := newTestAnchoringService(t, submit, 1)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc.SetMetrics(metrics)
	admitN(t, dag, 2)

	if _, err := svc.Attempt(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected submit error to propagate")
	}
	if got := testutil.ToFloat64(metrics.AnchorAttempts.WithLabelValues(string(AnchorFailed))); got != 1 {
		t.Fatalf("expected anchor_attempts_total{status=failed}=1, got %v", got)
	}
}

func TestAttemptSkipsWhenNotEligible(t *testing.T) {
	svc, dag := newTestAnchoringService(t, nil, 100)
	admitN(t, dag, 1)

	rec, err := svc.Attempt(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record when not eligible, got %+v", rec)
	}
}

func TestAnchorRingBufferBounded(t *testing.T) {
	submit := func(ctx context.Context, root [32]byte, meta AnchorMeta) (<-chan bool, error) {
		ch := make(chan bool, 1)
		ch <- true
		return ch, nil
	}
	svc, dag := newTestAnchoringService(t, submit, 1)

	now := time.Now()
	for i := 0; i < anchorRingSize+10; i++ {
		admitN(t, dag, 2)
		svc.mu.Lock()
		svc.lastAnchor = nil
		svc.lastTxCount = 0
		svc.mu.Unlock()
		now = now.Add(time.Hour)
		if _, err := svc.Attempt(context.Background(), now); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	if got := len(svc.Recent()); got != anchorRingSize {
		t.Fatalf("expected ring bounded to %d, got %d", anchorRingSize, got)
	}
}

func TestVerifyIntegrityWithoutAnchorIsFalse(t *testing.T) {
	svc, _ := newTestAnchoringService(t, nil, 1)
	ok, err := svc.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if ok {
		t.Fatalf("expected false when no anchor has ever confirmed")
	}
}

func TestVerifyIntegrityTrueWhenDagGrewSinceAnchor(t *testing.T) {
	svc, dag := newTestAnchoringService(t, nil, 1)
	admitN(t, dag, 2)
	root, err := svc.ComputeRoot()
	if err != nil {
		t.Fatalf("compute root: %v", err)
	}
	svc.mu.Lock()
	svc.lastAnchor = &AnchorRecord{Root: root, TxCount: 1}
	svc.mu.Unlock()

	admitN(t, dag, 3)
	ok, err := svc.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if !ok {
		t.Fatalf("expected integrity to hold when DAG has only grown")
	}
}
