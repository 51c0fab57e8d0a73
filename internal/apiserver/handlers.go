package apiserver

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/relaymesh/meshledger/internal/core"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func decodeTxID(s string) (core.TxID, error) {
	var id core.TxID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, core.ErrInvalidData
	}
	copy(id[:], b)
	return id, nil
}

func decodePub(s string) ([32]byte, error) {
	var pub [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(pub) {
		return pub, core.ErrInvalidData
	}
	copy(pub[:], b)
	return pub, nil
}

func (s *Server) handleDAGStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dag.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleDAGTips(w http.ResponseWriter, r *http.Request) {
	tips, err := s.dag.GetTips()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]string, len(tips))
	for i, id := range tips {
		out[i] = hex.EncodeToString(id[:])
	}
	writeJSON(w, out)
}

func (s *Server) handleDAGGet(w http.ResponseWriter, r *http.Request) {
	id, err := decodeTxID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, ok, err := s.dag.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, tx)
}

func (s *Server) handleWalletSummary(w http.ResponseWriter, r *http.Request) {
	pub, err := decodePub(chi.URLParam(r, "pub"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := s.wallet.Summary(pub)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	pub, err := decodePub(chi.URLParam(r, "pub"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			limit = n
		}
	}
	hist, err := s.wallet.History(pub, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, hist)
}

func (s *Server) handleWalletStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.wallet.Statistics()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

type feeCalculateRequest struct {
	MessageSize   int     `json:"message_size"`
	TTL           int     `json:"ttl"`
	Priority      float64 `json:"priority"`
	Congestion    float64 `json:"congestion"`
	AvgLatencySec float64 `json:"avg_latency_sec"`
}

func (s *Server) handleFeeCalculate(w http.ResponseWriter, r *http.Request) {
	var req feeCalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cond := &core.NetworkConditions{Congestion: req.Congestion, AvgLatencySec: req.AvgLatencySec}
	fee := s.feeCalc.Calculate(req.MessageSize, req.TTL, core.Priority(req.Priority), cond)
	writeJSON(w, map[string]uint64{"fee_micro_rlt": fee})
}

func (s *Server) handleFeeBeaconStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.feeBeacon.NetworkStats())
}

type routeCostRequest struct {
	Route   []string `json:"route"`
	MsgSize int      `json:"msg_size"`
}

func (s *Server) handleFeeBeaconRouteCost(w http.ResponseWriter, r *http.Request) {
	var req routeCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.feeBeacon.RouteCost(req.Route, req.MsgSize))
}

func (s *Server) handlePowStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"difficulty":  s.pow.Difficulty(),
		"target_time": s.pow.TargetTime().String(),
		"metrics":     s.pow.RecentMetrics(),
	})
}

func (s *Server) handleAnchoringRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.anchoring.Recent())
}

func (s *Server) handleAnchoringVerify(w http.ResponseWriter, r *http.Request) {
	ok, err := s.anchoring.VerifyIntegrity()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"ok": ok})
}
