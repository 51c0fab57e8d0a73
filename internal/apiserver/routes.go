package apiserver

import "github.com/go-chi/chi/v5"

func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/dag/stats", s.handleDAGStats)
	r.Get("/dag/tips", s.handleDAGTips)
	r.Get("/dag/tx/{id}", s.handleDAGGet)

	r.Get("/wallet/{pub}/summary", s.handleWalletSummary)
	r.Get("/wallet/{pub}/history", s.handleWalletHistory)
	r.Get("/wallet/statistics", s.handleWalletStatistics)

	r.Post("/fee_calc/calculate", s.handleFeeCalculate)
	r.Get("/fee_beacon/network_stats", s.handleFeeBeaconStats)
	r.Post("/fee_beacon/route_cost", s.handleFeeBeaconRouteCost)

	r.Get("/pow/stats", s.handlePowStats)

	r.Get("/anchoring/recent", s.handleAnchoringRecent)
	r.Get("/anchoring/verify", s.handleAnchoringVerify)

	r.Get("/ws/events", s.handleEventsWS)
}
