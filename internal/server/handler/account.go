package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// TreasuryService defines the methods that the account handler requires from
// the service layer.
type TreasuryService interface {
	Balance(ctx context.Context, addr common.Address) (int64, error)
	Deposit(ctx context.Context, addr common.Address, amount int64) error
	Withdraw(ctx context.Context, addr common.Address, amount int64) error
}

// AccountHandler serves account balance and custody endpoints.
type AccountHandler struct {
	treasury TreasuryService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(treasury TreasuryService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		treasury: treasury,
		logger:   logger,
	}
}

// GetBalance returns an account's internal balance in micro-units.
// GET /api/accounts/{address}
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	balance, err := h.treasury.Balance(r.Context(), addr)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("address", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": balance,
	})
}

// moveFundsRequest is the JSON body for deposits and withdrawals. Amount is
// in micro-units.
type moveFundsRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit credits an account, pulling custody tokens first when a chain
// bridge is configured.
// POST /api/accounts/{address}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	var req moveFundsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.treasury.Deposit(r.Context(), addr, req.Amount); err != nil {
		writeDomainError(w, err, "failed to deposit")
		return
	}

	balance, err := h.treasury.Balance(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": balance,
	})
}

// Withdraw debits an account and transfers custody tokens out when a chain
// bridge is configured.
// POST /api/accounts/{address}/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	var req moveFundsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.treasury.Withdraw(r.Context(), addr, req.Amount); err != nil {
		writeDomainError(w, err, "failed to withdraw")
		return
	}

	balance, err := h.treasury.Balance(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": balance,
	})
}
