package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type HTTPHandler struct {
	ledger *service.LedgerService
}

type CreateStockHTTPRequest struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
}

type QuantityHTTPRequest struct {
	Quantity int `json:"quantity"`
}

type StockHTTPResponse struct {
	Success   bool           `json:"success"`
	Outcome   domain.Outcome `json:"outcome,omitempty"`
	Message   string         `json:"message"`
	ProductID string         `json:"product_id,omitempty"`
	Requested int            `json:"requested,omitempty"`
	Quantity  int            `json:"quantity"`
	OnHand    int            `json:"on_hand"`
	Reserved  int            `json:"reserved"`
	Available int            `json:"available"`
	Version   int64          `json:"version,omitempty"`
	Shortfall int            `json:"shortfall,omitempty"`
}

func NewHTTPHandler(ledger *service.LedgerService) *HTTPHandler {
	return &HTTPHandler{ledger: ledger}
}

// NewRouter registers the stock API on a new mux.
func NewRouter(h *HTTPHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/stock", h.CreateStock)
	mux.HandleFunc("GET /api/stock/{productID}", h.Snapshot)
	mux.HandleFunc("POST /api/stock/{productID}/reserve", h.Reserve)
	mux.HandleFunc("POST /api/stock/{productID}/release", h.Release)
	mux.HandleFunc("POST /api/stock/{productID}/commit", h.Commit)
	return mux
}

func (h *HTTPHandler) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req CreateStockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StockHTTPResponse{
			Outcome: domain.OutcomeInvalidArgument,
			Message: "invalid request body",
		})
		return
	}

	rec, err := h.ledger.CreateStock(r.Context(), req.ProductID, req.OnHand)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, recordResponse(rec, "stock created"))
}

func (h *HTTPHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Snapshot(r.Context(), r.PathValue("productID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recordResponse(rec, "ok"))
}

func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.ledger.Reserve)
}

func (h *HTTPHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.ledger.Release)
}

func (h *HTTPHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.ledger.Commit)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type mutation func(ctx context.Context, productID string, qty int) (domain.Result, error)

func (h *HTTPHandler) mutate(w http.ResponseWriter, r *http.Request, op mutation) {
	var req QuantityHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StockHTTPResponse{
			Outcome: domain.OutcomeInvalidArgument,
			Message: "invalid request body",
		})
		return
	}

	res, err := op(r.Context(), r.PathValue("productID"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StockHTTPResponse{
		Success:   true,
		Outcome:   res.Outcome,
		Message:   "stock " + string(res.Outcome),
		ProductID: res.ProductID,
		Requested: res.Requested,
		Quantity:  res.Quantity,
		OnHand:    res.OnHand,
		Reserved:  res.Reserved,
		Available: res.Available,
		Version:   res.Version,
	})
}

func recordResponse(rec domain.StockRecord, message string) StockHTTPResponse {
	return StockHTTPResponse{
		Success:   true,
		Message:   message,
		ProductID: rec.ProductID,
		OnHand:    rec.OnHand,
		Reserved:  rec.Reserved,
		Available: rec.Available(),
		Version:   rec.Version,
	}
}

func writeError(w http.ResponseWriter, err error) {
	outcome := domain.OutcomeOf(err)
	resp := StockHTTPResponse{Outcome: outcome, Message: err.Error()}
	status := http.StatusInternalServerError

	switch outcome {
	case domain.OutcomeNotFound:
		status = http.StatusNotFound
	case domain.OutcomeInvalidArgument:
		status = http.StatusBadRequest
	case domain.OutcomeAlreadyExists, domain.OutcomeOverCommit:
		status = http.StatusConflict
	case domain.OutcomeInsufficientStock:
		status = http.StatusConflict
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			resp.Available = insufficient.Available
			resp.Shortfall = insufficient.Shortfall()
		}
	case domain.OutcomeContention:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	default:
		resp.Message = "internal error"
	}

	var over *domain.OverCommitError
	if errors.As(err, &over) {
		resp.Reserved = over.Reserved
		resp.Requested = over.Requested
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
