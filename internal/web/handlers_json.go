package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.feeds.Snapshot())
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.feeds.PriceSeriesAll())
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.feeds.RateSeriesAll())
}

func (s *Server) handleCurve(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.feeds.Curve())
}

func (s *Server) handleAccrual(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.feeds.AccrualSeriesAll())
}

func (s *Server) handleTopYields(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.feeds.TopYields())
}

func (s *Server) handleUnderlyings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.catalog.Underlyings())
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	underlying := r.URL.Query().Get("underlying")
	if underlying == "" {
		http.Error(w, "missing underlying", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, s.catalog.ContractsFor(underlying))
}

func (s *Server) handleSelectBasket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Underlying string   `json:"underlying"`
		Contracts  []string `json:"contracts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Underlying == "" {
		http.Error(w, "missing underlying", http.StatusBadRequest)
		return
	}
	for _, c := range req.Contracts {
		if _, ok := s.catalog.Get(c); !ok {
			http.Error(w, "unknown contract "+c, http.StatusBadRequest)
			return
		}
	}

	basket := s.monitor.SelectBasket(req.Underlying, req.Contracts)
	s.writeJSON(w, map[string]interface{}{"basket": basket})
}
