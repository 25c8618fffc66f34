// Package api exposes the simulation engine's public operations over
// HTTP: order placement and cancellation, ledger reads, reset, trade
// history, and the broker postback endpoint.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/execution"
	"tradesim/internal/logger"
	"tradesim/internal/markethours"
	"tradesim/internal/model"
	"tradesim/internal/portfolio"
)

// Deps wires the router's collaborators. Journal may be nil, in which
// case /api/v1/trades returns an empty list.
type Deps struct {
	Gateway     *execution.Gateway
	Coordinator *execution.Coordinator
	Journal     *execution.Journal
}

// NewRouter sets up HTTP routes for the engine API.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			placeOrder(w, r, d)
		case http.MethodGet:
			writeJSON(w, d.Coordinator.Ledger().Orders())
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// DELETE /api/v1/orders/{order_id}
	mux.HandleFunc("/api/v1/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		orderID := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/")
		if orderID == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing order id"))
			return
		}
		if err := d.Gateway.CancelOrder(r.Context(), orderID); err != nil {
			writeError(w, cancelStatusCode(err), err)
			return
		}
		writeJSON(w, map[string]string{"order_id": orderID, "status": model.StatusCancelled})
	})

	mux.HandleFunc("/api/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Coordinator.Ledger().Positions())
	})

	mux.HandleFunc("/api/v1/holdings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Coordinator.Ledger().Holdings())
	})

	mux.HandleFunc("/api/v1/funds", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Coordinator.Ledger().Funds())
	})

	mux.HandleFunc("/api/v1/portfolio", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, portfolio.Compute(d.Coordinator.Ledger().Snapshot()))
	})

	mux.HandleFunc("/api/v1/market/status", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		status := map[string]interface{}{
			"open":      markethours.IsMarketOpen(now),
			"next_open": markethours.NextOpen(now).Format(time.RFC3339),
			"status":    markethours.StatusString(now),
		}
		if name := markethours.HolidayName(now); name != "" {
			status["holiday"] = name
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		if d.Journal == nil {
			writeJSON(w, []execution.TradeRecord{})
			return
		}
		trades, err := d.Journal.GetTrades(d.Coordinator.Mode(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, trades)
	})

	mux.HandleFunc("/api/v1/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.Gateway.ResetLedger(req.Mode); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, map[string]string{"mode": req.Mode, "status": "reset"})
	})

	// Out-of-band fill/reject notifications from the live broker.
	mux.HandleFunc("/api/v1/broker/postback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var rep execution.BrokerReport
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.Gateway.HandleBrokerReport(rep); err != nil {
			log.Printf("[api] broker postback failed: %v", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, map[string]string{"status": "accepted"})
	})

	return mux
}

func placeOrder(w http.ResponseWriter, r *http.Request, d Deps) {
	var req execution.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	o, err := d.Gateway.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, placeStatusCode(err), err)
		return
	}
	ctx := logger.WithTraceID(r.Context(), logger.OrderTraceID(o.OrderID, o.PlacedAt))
	slog.Info("order accepted",
		append([]any{slog.String("order_id", o.OrderID), slog.String("symbol", o.TradingSymbol)},
			logger.LogWithTrace(ctx)...)...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(o)
}

func placeStatusCode(err error) int {
	switch {
	case errors.Is(err, model.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrBrokerUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func cancelStatusCode(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrBrokerUnavailable):
		return http.StatusBadGateway
	case strings.Contains(err.Error(), "not found"):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
