package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verida.org/internal/contract"
	"verida.org/internal/escrow"
	"verida.org/internal/ids"
)

type createEscrowRequest struct {
	ID           string      `json:"id"`
	Donor        string      `json:"donor"`
	Recipient    string      `json:"recipient"`
	Validator    string      `json:"validator"`
	Amount       json.Number `json:"amount"`
	Asset        string      `json:"asset"`
	Conditions   string      `json:"conditions"`
	TimeoutHours uint64      `json:"timeout_hours"`
}

type escrowActionRequest struct {
	Caller    string `json:"caller"`
	Validator string `json:"validator"`
}

type escrowOp func(v *escrow.Vault, ctx context.Context, id string, caller contract.Principal) error

var (
	escrowRelease escrowOp = (*escrow.Vault).ReleaseEscrow
	escrowDispute escrowOp = (*escrow.Vault).DisputeEscrow
	escrowCancel  escrowOp = (*escrow.Vault).CancelEscrow
)

func (a *API) createEscrow(w http.ResponseWriter, r *http.Request) {
	var req createEscrowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err := recordID(req.ID, ids.Escrow)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err = a.deps.Vault.CreateEscrow(r.Context(), escrow.Terms{
		ID:           id,
		Donor:        principalOr(r, req.Donor),
		Recipient:    contract.Principal(req.Recipient),
		Validator:    contract.Principal(req.Validator),
		Amount:       amount,
		Asset:        req.Asset,
		Conditions:   req.Conditions,
		TimeoutHours: req.TimeoutHours,
	})
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondEscrow(w, r, id, http.StatusCreated)
}

func (a *API) getEscrow(w http.ResponseWriter, r *http.Request) {
	a.respondEscrow(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (a *API) respondEscrow(w http.ResponseWriter, r *http.Request, id string, code int) {
	e, found, err := a.deps.Vault.GetEscrow(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	if !found {
		writeCodedError(w, r, http.StatusNotFound, string(contract.CodeNotFound), "escrow not found")
		return
	}
	writeJSON(w, code, e)
}

// escrowCustody reports what the vault still holds for an escrow.
func (a *API) escrowCustody(w http.ResponseWriter, r *http.Request) {
	if a.deps.Assets == nil {
		writeError(w, r, http.StatusServiceUnavailable, "asset ledger disabled")
		return
	}
	id := chi.URLParam(r, "id")
	e, found, err := a.deps.Vault.GetEscrow(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	if !found {
		writeCodedError(w, r, http.StatusNotFound, string(contract.CodeNotFound), "escrow not found")
		return
	}
	held, err := a.deps.Assets.GetHolding(r.Context(), e.Asset, escrow.CustodyAccount(e.ID))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, held)
}

func (a *API) validateEscrow(w http.ResponseWriter, r *http.Request) {
	var req escrowActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.deps.Vault.ValidateEscrow(r.Context(), id, principalOr(r, req.Validator)); err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondEscrow(w, r, id, http.StatusOK)
}

func (a *API) escrowAction(op escrowOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req escrowActionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		id := chi.URLParam(r, "id")
		if err := op(a.deps.Vault, r.Context(), id, principalOr(r, req.Caller)); err != nil {
			handleContractError(w, r, err)
			return
		}
		a.respondEscrow(w, r, id, http.StatusOK)
	}
}

// expireEscrow is open to anyone, authenticated or not.
func (a *API) expireEscrow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.deps.Vault.HandleExpiration(r.Context(), id); err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondEscrow(w, r, id, http.StatusOK)
}

func (a *API) escrowsByDonor(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Vault.EscrowsByDonor(r.Context(), contract.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeList(w, items)
}

func (a *API) escrowsByRecipient(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Vault.EscrowsByRecipient(r.Context(), contract.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeList(w, items)
}
