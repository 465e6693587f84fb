package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
)

// BettingService defines the methods that the bet handler requires from the
// service layer.
type BettingService interface {
	PlaceBet(ctx context.Context, marketID common.Hash, bettor common.Address, option int, amount int64) (domain.Bet, error)
	ListBets(ctx context.Context, marketID common.Hash, opts domain.ListOpts) ([]domain.Bet, error)
	ListBettorBets(ctx context.Context, marketID common.Hash, bettor common.Address) ([]domain.Bet, error)
}

// BetHandler serves bet placement and listing endpoints.
type BetHandler struct {
	betting BettingService
	logger  *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(betting BettingService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		betting: betting,
		logger:  logger,
	}
}

// placeBetRequest is the JSON body for bet placement. Amount is in
// micro-units.
type placeBetRequest struct {
	Bettor string `json:"bettor"`
	Option int    `json:"option"`
	Amount int64  `json:"amount"`
}

// PlaceBet stakes an amount on one option of an active market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bettor, ok := parseAddress(req.Bettor)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}

	bet, err := h.betting.PlaceBet(r.Context(), id, bettor, req.Option, req.Amount)
	if err != nil {
		writeDomainError(w, err, "failed to place bet")
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// listBetsResponse wraps the bet list output.
type listBetsResponse struct {
	Bets   []domain.Bet `json:"bets"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ListBets returns all bets on a market in placement order.
// GET /api/markets/{id}/bets?limit=50&offset=0
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	opts := parseListOpts(r)

	bets, err := h.betting.ListBets(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("market_id", id.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}

	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   bets,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// ListBettorBets returns one bettor's bets on a market.
// GET /api/markets/{id}/bets/{bettor}
func (h *BetHandler) ListBettorBets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	bettor, ok := pathAddress(r, "bettor")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}

	bets, err := h.betting.ListBettorBets(r.Context(), id, bettor)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bettor bets failed",
			slog.String("market_id", id.Hex()),
			slog.String("bettor", bettor.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}
