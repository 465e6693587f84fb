package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/poolwise/poolmarket/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a ledger error to its HTTP status and writes it. The
// fallback for unrecognized errors is a generic 500 with fallbackMsg, so
// internal detail never leaks to clients.
func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	for _, m := range errorStatusMap {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, fallbackMsg)
}

var errorStatusMap = []struct {
	err    error
	status int
}{
	{domain.ErrMarketNotFound, http.StatusNotFound},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrDuplicateMarket, http.StatusConflict},
	{domain.ErrEmptyQuestion, http.StatusBadRequest},
	{domain.ErrInvalidResolutionTime, http.StatusBadRequest},
	{domain.ErrInvalidOption, http.StatusBadRequest},
	{domain.ErrBetTooSmall, http.StatusBadRequest},
	{domain.ErrBetTooLarge, http.StatusBadRequest},
	{domain.ErrInvalidLimits, http.StatusBadRequest},
	{domain.ErrFeeTooHigh, http.StatusBadRequest},
	{domain.ErrInvalidResolverAddress, http.StatusBadRequest},
	{domain.ErrMarketNotActive, http.StatusConflict},
	{domain.ErrMarketNotResolved, http.StatusConflict},
	{domain.ErrMarketNotCancelled, http.StatusConflict},
	{domain.ErrTooEarly, http.StatusConflict},
	{domain.ErrLockHeld, http.StatusConflict},
	{domain.ErrNotAuthorized, http.StatusForbidden},
	{domain.ErrNotOwner, http.StatusForbidden},
	{domain.ErrNoBetsFound, http.StatusNotFound},
	{domain.ErrNoWinningsToClaim, http.StatusConflict},
	{domain.ErrNoRefundsAvailable, http.StatusConflict},
	{domain.ErrNoFeesToWithdraw, http.StatusConflict},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathHash extracts a named path parameter and parses it as a 32-byte hash.
func pathHash(r *http.Request, name string) (common.Hash, bool) {
	b, err := hexutil.Decode(r.PathValue(name))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// pathAddress extracts a named path parameter and parses it as an address.
func pathAddress(r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// parseAddress parses a request-body address string.
func parseAddress(raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
