package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
)

// AdminService defines the methods that the admin handler requires from the
// service layer.
type AdminService interface {
	GetParams(ctx context.Context) (domain.Params, error)
	SetPlatformFee(ctx context.Context, caller common.Address, feeBps int64) error
	SetBetLimits(ctx context.Context, caller common.Address, minBet, maxBet int64) error
	SetResolver(ctx context.Context, caller, resolver common.Address, authorized bool) error
	ListResolvers(ctx context.Context) ([]common.Address, error)
	CollectedFees(ctx context.Context) (int64, error)
	WithdrawFees(ctx context.Context, caller common.Address) (int64, error)
}

// AdminHandler serves the owner-gated parameter and fee endpoints.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given service and logger.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// GetParams returns the current fee rate and bet limits.
// GET /api/admin/params
func (h *AdminHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	params, err := h.admin.GetParams(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get params failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get params")
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// setFeeRequest is the JSON body for fee updates.
type setFeeRequest struct {
	Caller string `json:"caller"`
	FeeBps int64  `json:"fee_bps"`
}

// SetPlatformFee updates the platform fee rate.
// PUT /api/admin/fee
func (h *AdminHandler) SetPlatformFee(w http.ResponseWriter, r *http.Request) {
	var req setFeeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.admin.SetPlatformFee(r.Context(), caller, req.FeeBps); err != nil {
		writeDomainError(w, err, "failed to set fee")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"fee_bps": req.FeeBps})
}

// setLimitsRequest is the JSON body for bet-limit updates.
type setLimitsRequest struct {
	Caller string `json:"caller"`
	MinBet int64  `json:"min_bet"`
	MaxBet int64  `json:"max_bet"`
}

// SetBetLimits updates the bet-size bounds.
// PUT /api/admin/limits
func (h *AdminHandler) SetBetLimits(w http.ResponseWriter, r *http.Request) {
	var req setLimitsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.admin.SetBetLimits(r.Context(), caller, req.MinBet, req.MaxBet); err != nil {
		writeDomainError(w, err, "failed to set limits")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"min_bet": req.MinBet, "max_bet": req.MaxBet})
}

// setResolverRequest is the JSON body for resolver authorization changes.
type setResolverRequest struct {
	Caller     string `json:"caller"`
	Resolver   string `json:"resolver"`
	Authorized bool   `json:"authorized"`
}

// SetResolver adds or removes an address from the authorized-resolver set.
// PUT /api/admin/resolvers
func (h *AdminHandler) SetResolver(w http.ResponseWriter, r *http.Request) {
	var req setResolverRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	resolver, ok := parseAddress(req.Resolver)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resolver address")
		return
	}

	if err := h.admin.SetResolver(r.Context(), caller, resolver, req.Authorized); err != nil {
		writeDomainError(w, err, "failed to set resolver")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolver":   resolver,
		"authorized": req.Authorized,
	})
}

// ListResolvers returns the authorized-resolver set.
// GET /api/admin/resolvers
func (h *AdminHandler) ListResolvers(w http.ResponseWriter, r *http.Request) {
	resolvers, err := h.admin.ListResolvers(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list resolvers failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list resolvers")
		return
	}
	if resolvers == nil {
		resolvers = []common.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolvers": resolvers})
}

// CollectedFees returns the accrued, unwithdrawn platform fees.
// GET /api/admin/fees
func (h *AdminHandler) CollectedFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.admin.CollectedFees(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: collected fees failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get collected fees")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"collected_fees": fees})
}

// withdrawFeesRequest is the JSON body for fee withdrawal.
type withdrawFeesRequest struct {
	Caller string `json:"caller"`
}

// WithdrawFees moves the collected fees to the owner's account.
// POST /api/admin/fees/withdraw
func (h *AdminHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	amount, err := h.admin.WithdrawFees(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err, "failed to withdraw fees")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}
