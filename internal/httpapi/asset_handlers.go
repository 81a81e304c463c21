package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"verida.org/internal/audit"
	"verida.org/internal/auth"
	"verida.org/internal/ledger"
	"verida.org/internal/mirror"
	"verida.org/internal/proofs"
)

type mintRequest struct {
	Account string      `json:"account"`
	Amount  json.Number `json:"amount"`
}

type transferRequest struct {
	To     string      `json:"to"`
	Amount json.Number `json:"amount"`
}

type pageResponse struct {
	Items  []json.RawMessage `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type proofUploadRequest struct {
	DonationID string `json:"donation_id"`
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	if a.deps.Assets == nil {
		writeError(w, r, http.StatusServiceUnavailable, "asset ledger disabled")
		return
	}
	bal, err := a.deps.Assets.GetBalance(r.Context(), chi.URLParam(r, "asset"), chi.URLParam(r, "account"))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// mint is the operator faucet that funds custody accounts.
func (a *API) mint(w http.ResponseWriter, r *http.Request) {
	if a.deps.Assets == nil {
		writeError(w, r, http.StatusServiceUnavailable, "asset ledger disabled")
		return
	}
	if !auth.HasRole(r.Context(), auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	var req mintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	asset := chi.URLParam(r, "asset")
	account := strings.TrimSpace(req.Account)
	tx, err := a.deps.Assets.Mint(r.Context(), account, ledger.Money{Asset: asset, Amount: amount})
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	_ = audit.LogEvent(r.Context(), "asset.mint", map[string]any{
		"caller":  caller,
		"asset":   asset,
		"account": account,
		"amount":  amount.String(),
		"tx_id":   tx.ID,
	})
	writeJSON(w, http.StatusCreated, tx)
}

// transfer moves funds from the caller's own account.
func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	if a.deps.Assets == nil {
		writeError(w, r, http.StatusServiceUnavailable, "asset ledger disabled")
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	caller, _ := auth.UserIDFromContext(r.Context())
	asset := chi.URLParam(r, "asset")
	to := strings.TrimSpace(req.To)
	tx, err := a.deps.Assets.Transfer(r.Context(), caller, to, ledger.Money{Asset: asset, Amount: amount})
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "asset.transfer", map[string]any{
		"from":   caller,
		"to":     to,
		"asset":  asset,
		"amount": amount.String(),
		"tx_id":  tx.ID,
	})
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) proofUploadURL(w http.ResponseWriter, r *http.Request) {
	if a.deps.Proofs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "proof storage not configured")
		return
	}
	var req proofUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	up, err := a.deps.Proofs.UploadURL(r.Context(), req.DonationID)
	if err != nil {
		handleProofError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (a *API) proofDownloadURL(w http.ResponseWriter, r *http.Request) {
	if a.deps.Proofs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "proof storage not configured")
		return
	}
	key := r.URL.Query().Get("key")
	url, err := a.deps.Proofs.DownloadURL(r.Context(), key)
	if err != nil {
		handleProofError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "url": url, "method": http.MethodGet})
}

func handleProofError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, proofs.ErrInvalidKey) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, r, http.StatusBadGateway, "proof storage unavailable")
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.deps.Mirror == nil {
		writeError(w, r, http.StatusServiceUnavailable, "statistics disabled")
		return
	}
	stats, err := a.deps.Mirror.Stats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "statistics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listRecords serves a page of mirrored records of one kind.
func (a *API) listRecords(kind mirror.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.deps.Mirror == nil {
			writeError(w, r, http.StatusServiceUnavailable, "listing disabled")
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		limit, offset = mirror.Page(limit, offset)
		items, err := a.deps.Mirror.List(r.Context(), kind, limit, offset)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "listing unavailable")
			return
		}
		writeJSON(w, http.StatusOK, pageResponse{Items: items, Limit: limit, Offset: offset})
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
