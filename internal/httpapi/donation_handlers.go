package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verida.org/internal/contract"
	"verida.org/internal/donation"
	"verida.org/internal/ids"
)

type createDonationRequest struct {
	ID          string      `json:"id"`
	Donor       string      `json:"donor"`
	Recipient   string      `json:"recipient"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Conditions  string      `json:"conditions"`
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Updater string `json:"updater"`
}

func (a *API) createDonation(w http.ResponseWriter, r *http.Request) {
	var req createDonationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err := recordID(req.ID, ids.Donation)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err = a.deps.Donations.CreateDonation(r.Context(), donation.Pledge{
		ID:          id,
		Donor:       principalOr(r, req.Donor),
		Recipient:   contract.Principal(req.Recipient),
		Amount:      amount,
		Description: req.Description,
		Conditions:  req.Conditions,
	})
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondDonation(w, r, id, http.StatusCreated)
}

func (a *API) getDonation(w http.ResponseWriter, r *http.Request) {
	a.respondDonation(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (a *API) respondDonation(w http.ResponseWriter, r *http.Request, id string, code int) {
	d, found, err := a.deps.Donations.GetDonation(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	if !found {
		writeCodedError(w, r, http.StatusNotFound, string(contract.CodeNotFound), "donation not found")
		return
	}
	writeJSON(w, code, d)
}

func (a *API) updateDonationStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := donation.ParseStatus(req.Status)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.deps.Donations.UpdateStatus(r.Context(), id, target, principalOr(r, req.Updater)); err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondDonation(w, r, id, http.StatusOK)
}

func (a *API) donationsByDonor(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Donations.DonationsByDonor(r.Context(), contract.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeList(w, items)
}

func (a *API) donationsByRecipient(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Donations.DonationsByRecipient(r.Context(), contract.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeList(w, items)
}
