package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"blitzid/internal/logging"
	"blitzid/internal/metrics"
	"blitzid/internal/wallet"
)

// Handler handles HTTP requests.
type Handler struct {
	wallet  wallet.Client
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewHandler creates the gateway handler. requireAuth is composed in front
// of every route except the health check.
func NewHandler(w wallet.Client, requireAuth Middleware, m *metrics.Metrics) *Handler {
	h := &Handler{
		wallet:  w,
		metrics: m,
		mux:     http.NewServeMux(),
	}
	h.registerRoutes(requireAuth)
	return h
}

func (h *Handler) registerRoutes(requireAuth Middleware) {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.Handle("POST /invoice", requireAuth(http.HandlerFunc(h.handleCreateInvoice)))
	h.mux.Handle("GET /invoice/{payment_hash}", requireAuth(http.HandlerFunc(h.handleAwaitInvoice)))
	h.mux.Handle("POST /pay", requireAuth(http.HandlerFunc(h.handlePay)))
	h.mux.Handle("GET /balance", requireAuth(http.HandlerFunc(h.handleBalance)))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleHealth must not touch the wallet, so it answers even when the
// wallet is degraded.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// CreateInvoiceRequest is the request body for issuing an invoice.
type CreateInvoiceRequest struct {
	AmountMsats int64  `json:"amount_msats"`
	Description string `json:"description"`
}

// CreateInvoiceResponse returns the issued invoice.
type CreateInvoiceResponse struct {
	Invoice     string `json:"invoice"`
	PaymentHash string `json:"payment_hash"`
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.AmountMsats <= 0 {
		http.Error(w, "amount_msats must be positive", http.StatusBadRequest)
		return
	}

	inv, err := h.wallet.CreateInvoice(r.Context(), req.AmountMsats, req.Description)
	if err != nil {
		logging.HTTP.Printf("rid=%s create invoice: %v", RequestID(r.Context()), err)
		http.Error(w, "failed to create invoice", http.StatusInternalServerError)
		return
	}
	h.metrics.InvoicesCreated.Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(CreateInvoiceResponse{
		Invoice:     inv.PaymentRequest,
		PaymentHash: inv.PaymentHash,
	}); err != nil {
		logging.HTTP.Printf("failed to encode response: %v", err)
	}
}

// AwaitInvoiceResponse reports the outcome of an invoice wait.
type AwaitInvoiceResponse struct {
	Paid bool `json:"paid"`
}

// handleAwaitInvoice blocks until the invoice is settled, the invoice
// expires, or the client goes away. A 200 from this endpoint always means
// settled; unknown and expired hashes are both 404.
func (h *Handler) handleAwaitInvoice(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(r.PathValue("payment_hash"))
	if !wallet.ValidPaymentHash(hash) {
		http.Error(w, "invalid payment hash", http.StatusBadRequest)
		return
	}

	h.metrics.ActiveWaits.Inc()
	err := h.wallet.AwaitPayment(r.Context(), hash)
	h.metrics.ActiveWaits.Dec()

	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(AwaitInvoiceResponse{Paid: true}); err != nil {
			logging.HTTP.Printf("failed to encode response: %v", err)
		}
	case errors.Is(err, wallet.ErrInvoiceNotFound):
		http.Error(w, "invoice not found or not issued by this server", http.StatusNotFound)
	case errors.Is(err, wallet.ErrInvoiceExpired):
		http.Error(w, "invoice expired", http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client gave up; there is nobody left to answer.
	default:
		logging.HTTP.Printf("rid=%s await %s: %v", RequestID(r.Context()), hash[:8], err)
		http.Error(w, "failed to check invoice", http.StatusInternalServerError)
	}
}

// PayRequest is the request body for paying an invoice.
type PayRequest struct {
	Invoice string `json:"invoice"`
}

// PayResponse returns the settlement preimage.
type PayResponse struct {
	Preimage string `json:"preimage"`
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Invoice == "" {
		http.Error(w, "invoice is required", http.StatusBadRequest)
		return
	}

	preimage, err := h.wallet.PayInvoice(r.Context(), req.Invoice)
	if errors.Is(err, wallet.ErrInvalidInvoice) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.HTTP.Printf("rid=%s pay: %v", RequestID(r.Context()), err)
		http.Error(w, "payment failed", http.StatusInternalServerError)
		return
	}
	h.metrics.PaymentsSent.Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(PayResponse{Preimage: preimage}); err != nil {
		logging.HTTP.Printf("failed to encode response: %v", err)
	}
}

// BalanceResponse reports the wallet balance.
type BalanceResponse struct {
	BalanceMsats int64 `json:"balance_msats"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.wallet.Balance(r.Context())
	if err != nil {
		logging.HTTP.Printf("rid=%s balance: %v", RequestID(r.Context()), err)
		http.Error(w, "failed to get balance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(BalanceResponse{BalanceMsats: balance}); err != nil {
		logging.HTTP.Printf("failed to encode response: %v", err)
	}
}
