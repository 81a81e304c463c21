package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"verida.org/internal/contract"
	"verida.org/internal/ids"
	"verida.org/internal/ledger"
	"verida.org/internal/obs"
	"verida.org/internal/state"
)

var errEmptyBody = errors.New("request body is required")

type listResponse struct {
	Items []string `json:"items"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeList(w http.ResponseWriter, items []string) {
	if items == nil {
		items = []string{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeCodedError(w, r, code, "", msg)
}

func writeCodedError(w http.ResponseWriter, r *http.Request, code int, reason, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if reason != "" {
		payload["code"] = reason
	}
	if rid := RequestIDFromContext(r); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleContractError maps an aborted call onto an HTTP status.
func handleContractError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeCodedError(w, r, http.StatusConflict, "insufficient_funds", err.Error())
		return
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAsset), errors.Is(err, ledger.ErrInvalidAccount):
		writeCodedError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	case errors.Is(err, state.ErrConflict):
		writeCodedError(w, r, http.StatusConflict, "conflict", "concurrent update, retry the request")
		return
	}

	switch contract.KindOf(err) {
	case contract.ConfigurationError:
		writeCodedError(w, r, http.StatusServiceUnavailable, string(contract.CodeOf(err)), err.Error())
		return
	case contract.ValidationError:
		code := contract.CodeOf(err)
		writeCodedError(w, r, validationStatus(code), string(code), err.Error())
		return
	}

	obs.Error("contract call failed", map[string]any{
		"request_id": RequestIDFromContext(r),
		"path":       r.URL.Path,
		"error":      err.Error(),
	})
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

func validationStatus(code contract.Code) int {
	switch code {
	case contract.CodeNotFound:
		return http.StatusNotFound
	case contract.CodeUnauthorized:
		return http.StatusForbidden
	case contract.CodeInvalidState, contract.CodeExpired, contract.CodeNotExpired, contract.CodeAlreadyInitialized:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeBody decodes an optional body; an empty one leaves dst untouched.
// Chunked requests carry no length, so emptiness is only known after reading.
func decodeBody(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

// parseAmount reads an integer amount without going through float64.
func parseAmount(field string, n json.Number) (*big.Int, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return nil, errors.New(field + " is required")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New(field + " must be an integer")
	}
	return v, nil
}

// recordID returns the client supplied id or a fresh one with prefix.
func recordID(raw, prefix string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ids.New(prefix), nil
	}
	if !ids.Valid(id) {
		return "", errors.New("id must be 1-64 characters of [A-Za-z0-9_.-]")
	}
	return id, nil
}
