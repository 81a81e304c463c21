package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verida.org/internal/contract"
)

// administered is the admin surface every contract exposes.
type administered interface {
	Initialize(ctx context.Context, admin contract.Principal) error
	Admin(ctx context.Context) (contract.Principal, bool, error)
}

type initializeRequest struct {
	Admin string `json:"admin"`
}

func (a *API) lookupContract(w http.ResponseWriter, r *http.Request) (string, administered, bool) {
	name := chi.URLParam(r, "contract")
	c, ok := a.contract[name]
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown contract "+name)
		return "", nil, false
	}
	return name, c, true
}

func (a *API) initialize(w http.ResponseWriter, r *http.Request) {
	name, c, ok := a.lookupContract(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	admin := principalOr(r, req.Admin)
	if err := c.Initialize(r.Context(), admin); err != nil {
		handleContractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"contract": name, "admin": admin})
}

func (a *API) getAdmin(w http.ResponseWriter, r *http.Request) {
	name, c, ok := a.lookupContract(w, r)
	if !ok {
		return
	}
	admin, found, err := c.Admin(r.Context())
	if err != nil {
		handleContractError(w, r, err)
		return
	}
	if !found {
		handleContractError(w, r, contract.ErrAdminNotConfigured)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contract": name, "admin": admin})
}
