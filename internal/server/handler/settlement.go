package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
)

// SettlementService defines the methods that the settlement handler requires
// from the service layer.
type SettlementService interface {
	ClaimWinnings(ctx context.Context, marketID common.Hash, bettor common.Address) (domain.Settlement, error)
	RefundBets(ctx context.Context, marketID common.Hash, bettor common.Address) (domain.Settlement, error)
}

// SettlementHandler serves the claim and refund endpoints.
type SettlementHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given service and
// logger.
func NewSettlementHandler(settlement SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		logger:     logger,
	}
}

// settleRequest is the JSON body for claim and refund requests.
type settleRequest struct {
	Bettor string `json:"bettor"`
}

// ClaimWinnings settles the caller's winning bets on a resolved market.
// POST /api/markets/{id}/claim
func (h *SettlementHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bettor, ok := parseAddress(req.Bettor)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}

	settlement, err := h.settlement.ClaimWinnings(r.Context(), id, bettor)
	if err != nil {
		writeDomainError(w, err, "failed to claim winnings")
		return
	}

	writeJSON(w, http.StatusOK, settlement)
}

// RefundBets returns the caller's unclaimed principal on a cancelled market.
// POST /api/markets/{id}/refund
func (h *SettlementHandler) RefundBets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bettor, ok := parseAddress(req.Bettor)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}

	settlement, err := h.settlement.RefundBets(r.Context(), id, bettor)
	if err != nil {
		writeDomainError(w, err, "failed to refund bets")
		return
	}

	writeJSON(w, http.StatusOK, settlement)
}
