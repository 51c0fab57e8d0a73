// Command relaynode bootstraps a relay-token ledger node: it wires DAG
// storage, the wallet ledger, reward distribution, the transaction
// processor, fee calculation, proof-of-work, and anchoring together behind
// the inspection API (spec §6).
package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/relaymesh/meshledger/internal/apiserver"
	"github.com/relaymesh/meshledger/internal/config"
	"github.com/relaymesh/meshledger/internal/core"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("relaynode: config load failed")
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		logrus.WithError(err).Fatal("relaynode: failed to create data dir")
	}

	dag, err := core.OpenDAGStorage(filepath.Join(cfg.Node.DataDir, "dag.db"), cfg.DAG.MaxTransactions)
	if err != nil {
		logrus.WithError(err).Fatal("relaynode: dag storage open failed")
	}
	defer dag.Close()

	startingBalance := cfg.Wallet.StartingBalanceMicroRLT
	wallet, err := core.OpenWalletLedger(filepath.Join(cfg.Node.DataDir, "wallet.db"), startingBalance)
	if err != nil {
		logrus.WithError(err).Fatal("relaynode: wallet ledger open failed")
	}
	defer wallet.Close()

	selfKey, err := loadOrCreateDeviceKey(cfg.Node.DeviceKeyPath)
	if err != nil {
		logrus.WithError(err).Fatal("relaynode: device key load failed")
	}

	rewards := core.NewRewardDistributor(wallet, selfKey)
	processor, err := core.NewTransactionProcessor(dag, rewards)
	if err != nil {
		logrus.WithError(err).Fatal("relaynode: transaction processor init failed")
	}

	feeCalc := core.NewFeeCalculator()
	feeBeacon := core.NewFeeBeaconManager(feeCalc)
	powEngine := core.NewEngine()

	anchoring := core.NewAnchoringService(dag, loggingOnlySubmit, cfg.Anchoring.Interval, cfg.Anchoring.MinInterval, cfg.Anchoring.MinTxForAnchor)

	registry := prometheus.NewRegistry()
	metrics := core.NewMetrics(registry)
	processor.SetMetrics(metrics)
	rewards.SetMetrics(metrics)
	powEngine.SetMetrics(metrics)
	anchoring.SetMetrics(metrics)

	server := apiserver.New(cfg.API.ListenAddr, apiserver.Deps{
		DAG:       dag,
		Wallet:    wallet,
		Processor: processor,
		FeeCalc:   feeCalc,
		FeeBeacon: feeBeacon,
		PoW:       powEngine,
		Anchoring: anchoring,
		Registry:  registry,
	})

	processor.SetOnAdmit(func(tx core.SignedRelayTx) {
		tipCount := 0
		if stats, err := processor.Stats(); err == nil {
			tipCount = stats.TipCount
		}
		id := tx.ID()
		server.PublishAdmitted(apiserver.AdmittedEvent{
			TxID:          hex.EncodeToString(id[:]),
			SenderPub:     hex.EncodeToString(tx.SenderPub[:]),
			FeePerHop:     tx.FeePerHop,
			TipCountAfter: tipCount,
		})
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go feeBeacon.StartSweeper(ctx)
	go anchoring.Run(ctx)

	logrus.WithField("addr", cfg.API.ListenAddr).Info("relaynode: starting")
	if err := server.Run(ctx); err != nil {
		logrus.WithError(err).Fatal("relaynode: apiserver exited with error")
	}
}

// loggingOnlySubmit is the default anchoring submission collaborator until a
// real timestamping network integration is wired up on the transport side;
// it logs the intent to anchor and immediately reports failure rather than
// silently pretending to succeed.
func loggingOnlySubmit(ctx context.Context, root [32]byte, meta core.AnchorMeta) (<-chan bool, error) {
	logrus.WithField("tx_count", meta.TxCount).Warn("relaynode: no anchoring network submitter configured")
	ch := make(chan bool, 1)
	ch <- false
	return ch, nil
}
