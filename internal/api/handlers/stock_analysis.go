package handlers

import (
	"net/http"
	"strconv"

	"github.com/esclipse/SynthraCloud/internal/history"
	"github.com/esclipse/SynthraCloud/internal/screening"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// StockAnalysisHandler handles screening submission, polling and run history
// ⭐ SSOT: 종목 스크리닝 API 핸들러는 이 구조체에서만
type StockAnalysisHandler struct {
	proxy  *screening.Proxy
	logger *logger.Logger
}

// NewStockAnalysisHandler creates a new stock analysis handler
func NewStockAnalysisHandler(proxy *screening.Proxy, log *logger.Logger) *StockAnalysisHandler {
	return &StockAnalysisHandler{
		proxy:  proxy,
		logger: log,
	}
}

// Submit forwards a screening job to the job service
// POST /api/stock-analysis
func (h *StockAnalysisHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req screening.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	outcome, err := h.proxy.Submit(r.Context(), req)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Warn("Stock analysis submission failed")
		respondScreeningError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, outcome.Body())
}

// Poll resolves a continuation token
// GET /api/stock-analysis?pollToken=...
func (h *StockAnalysisHandler) Poll(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.proxy.Poll(r.Context(), r.URL.Query().Get("pollToken"))
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Debug("Stock analysis poll failed")
		respondScreeningError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, outcome.Body())
}

// History lists recent completed runs
// GET /api/stock-analysis/history?limit=N
func (h *StockAnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.proxy.History().Recent(r.Context(), history.ClampLimit(limit))
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Failed to load screening history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
