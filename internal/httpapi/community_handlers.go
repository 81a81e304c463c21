package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verida.org/internal/community"
	"verida.org/internal/contract"
	"verida.org/internal/ids"
)

type registerCommunityRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	Representative string `json:"representative"`
}

type adminRequest struct {
	Admin string `json:"admin"`
}

type updateNeedsRequest struct {
	Needs          []string `json:"needs"`
	Representative string   `json:"representative"`
}

type totalReceivedRequest struct {
	Amount json.Number `json:"amount"`
	Admin  string      `json:"admin"`
}

type validateDeliveryRequest struct {
	ID            string `json:"id"`
	DonationID    string `json:"donation_id"`
	CommunityID   string `json:"community_id"`
	Validator     string `json:"validator"`
	GoodsReceived string `json:"goods_received"`
	Quantity      uint32 `json:"quantity"`
	DeliveryProof string `json:"delivery_proof"`
}

type deliveryDecisionRequest struct {
	Caller string `json:"caller"`
}

func (a *API) registerCommunity(w http.ResponseWriter, r *http.Request) {
	var req registerCommunityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err := recordID(req.ID, ids.Community)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err = a.deps.Registry.RegisterCommunity(r.Context(), community.Registration{
		ID:             id,
		Name:           req.Name,
		Location:       req.Location,
		Description:    req.Description,
		Representative: principalOr(r, req.Representative),
	})
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondCommunity(w, r, id, http.StatusCreated)
}

func (a *API) getCommunity(w http.ResponseWriter, r *http.Request) {
	a.respondCommunity(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (a *API) respondCommunity(w http.ResponseWriter, r *http.Request, id string, code int) {
	c, found, err := a.deps.Registry.GetCommunity(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	if !found {
		writeCodedError(w, r, http.StatusNotFound, string(contract.CodeNotFound), "community not found")
		return
	}
	writeJSON(w, code, c)
}

func (a *API) verifyCommunity(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.deps.Registry.VerifyCommunity(r.Context(), id, principalOr(r, req.Admin)); err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondCommunity(w, r, id, http.StatusOK)
}

func (a *API) updateNeeds(w http.ResponseWriter, r *http.Request) {
	var req updateNeedsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.deps.Registry.UpdateNeeds(r.Context(), id, req.Needs, principalOr(r, req.Representative)); err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondCommunity(w, r, id, http.StatusOK)
}

func (a *API) updateTotalReceived(w http.ResponseWriter, r *http.Request) {
	var req totalReceivedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.deps.Registry.UpdateTotalReceived(r.Context(), id, amount, principalOr(r, req.Admin)); err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondCommunity(w, r, id, http.StatusOK)
}

func (a *API) communitiesByRepresentative(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Registry.CommunitiesByRepresentative(r.Context(), contract.Principal(chi.URLParam(r, "principal")))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeList(w, items)
}

func (a *API) validateDelivery(w http.ResponseWriter, r *http.Request) {
	var req validateDeliveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err := recordID(req.ID, ids.Delivery)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err = a.deps.Registry.ValidateDelivery(r.Context(), community.DeliveryReport{
		ID:            id,
		DonationID:    req.DonationID,
		CommunityID:   req.CommunityID,
		Validator:     principalOr(r, req.Validator),
		GoodsReceived: req.GoodsReceived,
		Quantity:      req.Quantity,
		DeliveryProof: req.DeliveryProof,
	})
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondDelivery(w, r, id, http.StatusCreated)
}

func (a *API) getDelivery(w http.ResponseWriter, r *http.Request) {
	a.respondDelivery(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (a *API) respondDelivery(w http.ResponseWriter, r *http.Request, id string, code int) {
	v, found, err := a.deps.Registry.GetDeliveryValidation(r.Context(), id)
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	if !found {
		writeCodedError(w, r, http.StatusNotFound, string(contract.CodeNotFound), "delivery validation not found")
		return
	}
	writeJSON(w, code, v)
}

func (a *API) approveDelivery(w http.ResponseWriter, r *http.Request) {
	a.decideDelivery(w, r, a.deps.Registry.ApproveDelivery)
}

func (a *API) rejectDelivery(w http.ResponseWriter, r *http.Request) {
	a.decideDelivery(w, r, a.deps.Registry.RejectDelivery)
}

func (a *API) decideDelivery(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, id string, p contract.Principal) error) {
	var req deliveryDecisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := decide(r.Context(), id, principalOr(r, req.Caller)); err != nil {
		handleContractError(w, r, err)
		return
	}
	a.respondDelivery(w, r, id, http.StatusOK)
}

func (a *API) validationsByDonation(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Registry.ValidationsByDonation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	writeList(w, items)
}
