package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, req service.CreateMarketRequest) (domain.Market, error)
	GetMarket(ctx context.Context, id common.Hash) (domain.Market, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	GetOdds(ctx context.Context, id common.Hash) ([2]float64, error)
	ResolveMarket(ctx context.Context, id common.Hash, winningOption int, caller common.Address) (domain.Market, error)
	CancelMarket(ctx context.Context, id common.Hash, caller common.Address) (domain.Market, error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns active markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListActive(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetOdds returns the implied payout multiplier per option.
// GET /api/markets/{id}/odds
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	odds, err := h.markets.GetOdds(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get odds")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"yes":       odds[domain.OptionYes],
		"no":        odds[domain.OptionNo],
	})
}

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	Creator        string `json:"creator"`
	Type           string `json:"type"`
	Question       string `json:"question"`
	ResolutionTime string `json:"resolution_time"` // RFC 3339

	DataSourceID   string `json:"data_source_id,omitempty"`
	Comparator     string `json:"comparator,omitempty"`
	Threshold      int64  `json:"threshold,omitempty"`
	ThresholdToken string `json:"threshold_token,omitempty"`
}

// CreateMarket creates a new active market from a JSON body.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creator, ok := parseAddress(req.Creator)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}
	resolutionTime, err := time.Parse(time.RFC3339, req.ResolutionTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resolution_time, want RFC 3339")
		return
	}

	var thresholdToken common.Address
	if req.ThresholdToken != "" {
		thresholdToken, ok = parseAddress(req.ThresholdToken)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid threshold_token address")
			return
		}
	}

	market, err := h.markets.CreateMarket(r.Context(), service.CreateMarketRequest{
		Creator:        creator,
		Type:           domain.MarketType(req.Type),
		Question:       req.Question,
		ResolutionTime: resolutionTime,
		DataSourceID:   req.DataSourceID,
		Comparator:     domain.Comparator(req.Comparator),
		Threshold:      req.Threshold,
		ThresholdToken: thresholdToken,
	})
	if err != nil {
		writeDomainError(w, err, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// resolveMarketRequest is the JSON body for resolution.
type resolveMarketRequest struct {
	Caller        string `json:"caller"`
	WinningOption int    `json:"winning_option"`
}

// ResolveMarket records the winning option for a market past its resolution
// time. The caller must be an authorized resolver or the owner.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	market, err := h.markets.ResolveMarket(r.Context(), id, req.WinningOption, caller)
	if err != nil {
		writeDomainError(w, err, "failed to resolve market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// cancelMarketRequest is the JSON body for cancellation.
type cancelMarketRequest struct {
	Caller string `json:"caller"`
}

// CancelMarket voids an active market. Only the creator or the owner may
// cancel.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathHash(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req cancelMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	market, err := h.markets.CancelMarket(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, err, "failed to cancel market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}
