package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/ledger"
	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/ariefcatur/go-market-sync.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// StatsHandler exposes seller settlement aggregates. The aggregation runs
// server-side in one query; Redis fronts it with a short cache.
type StatsHandler struct {
	Escrow  *ledger.Escrow
	Loyalty *ledger.Loyalty
	Redis   *redis.Client
}

func (h *StatsHandler) Register(r *chi.Mux) {
	r.Get("/sellers/{id}/settlement-stats", h.getSettlementStats)
	r.Get("/sellers/{id}/buyers/{buyerID}/coins", h.getCoinBalance)
	r.Post("/escrow/{orderID}/release", h.releaseEscrow)
	r.Post("/escrow/sweep", h.sweepEscrows)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *StatsHandler) getSettlementStats(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "id")
	if sellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeySettlementStats, sellerID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	// 2) fallback DB
	stats, err := h.Escrow.SettlementStats(ctx, sellerID)
	if err != nil {
		if errors.Is(err, market.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	b, _ := json.Marshal(stats)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLSettlementStats).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *StatsHandler) getCoinBalance(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "id")
	buyerID := chi.URLParam(r, "buyerID")
	if sellerID == "" || buyerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing ids"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bal, err := h.Loyalty.Store.CoinBalance(ctx, sellerID, buyerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seller_id": sellerID,
		"buyer_id":  buyerID,
		"balance":   bal,
	})
}

// sweepEscrows releases every escrow past its hold window. Safe to trigger
// repeatedly: each record flips at most once.
func (h *StatsHandler) sweepEscrows(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	n, err := h.Escrow.Sweep(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": n})
}

// releaseEscrow triggers the guarded PENDING -> RELEASED flip for one order.
// Not eligible (still held, frozen, or already released) is 409, not an error.
func (h *StatsHandler) releaseEscrow(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	released, err := h.Escrow.Release(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !released {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "not eligible for release"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "payout_status": "RELEASED"})
}
