// Package apiserver exposes the relay-token ledger's inspection surface
// (spec §6) over HTTP: DAG/wallet/fee/PoW read endpoints, a Prometheus
// /metrics endpoint, and a websocket feed of admitted-transaction events.
package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/relaymesh/meshledger/internal/core"
)

// Server binds the inspection API to the node's core collaborators.
type Server struct {
	dag       *core.DAGStorage
	wallet    *core.WalletLedger
	processor *core.TransactionProcessor
	feeCalc   *core.FeeCalculator
	feeBeacon *core.FeeBeaconManager
	pow       *core.Engine
	anchoring *core.AnchoringService

	events *eventHub
	http   *http.Server
}

// Deps collects the collaborators a Server routes requests to.
type Deps struct {
	DAG       *core.DAGStorage
	Wallet    *core.WalletLedger
	Processor *core.TransactionProcessor
	FeeCalc   *core.FeeCalculator
	FeeBeacon *core.FeeBeaconManager
	PoW       *core.Engine
	Anchoring *core.AnchoringService
	Registry  *prometheus.Registry
}

// New constructs a Server listening on addr once Run is called.
func New(addr string, deps Deps) *Server {
	s := &Server{
		dag:       deps.DAG,
		wallet:    deps.Wallet,
		processor: deps.Processor,
		feeCalc:   deps.FeeCalc,
		feeBeacon: deps.FeeBeacon,
		pow:       deps.PoW,
		anchoring: deps.Anchoring,
		events:    newEventHub(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	s.registerRoutes(r)

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// PublishAdmitted broadcasts an admitted-transaction event to connected
// websocket subscribers. Safe to call with no subscribers attached.
func (s *Server) PublishAdmitted(ev AdmittedEvent) {
	s.events.broadcast(ev)
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", s.http.Addr).Info("apiserver: listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
