package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"verida.org/internal/auth"
	"verida.org/internal/community"
	"verida.org/internal/donation"
	"verida.org/internal/escrow"
	"verida.org/internal/events"
	"verida.org/internal/ledger"
	"verida.org/internal/mirror"
	"verida.org/internal/obs"
	"verida.org/internal/proofs"
)

const serviceName = "verida-api"

type Readiness interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings whatever durable dependencies the process was started with.
type ReadyProbe struct {
	DB    *sql.DB
	Cache interface{ Health(context.Context) error }
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Cache != nil {
		return rp.Cache.Health(ctx)
	}
	return nil
}

// Deps wires the contracts and supporting services into the HTTP layer.
// Mirror, Proofs and Stream are optional.
type Deps struct {
	Registry  *community.Registry
	Donations *donation.Ledger
	Vault     *escrow.Vault
	Assets    ledger.Service
	Issuer    *auth.Issuer
	Mirror    mirror.Store
	Proofs    *proofs.Service
	Stream    *events.Stream
	Ready     Readiness

	Version   string
	DevTokens bool
	TokenTTL  time.Duration

	RateBurst    int
	RatePerSec   float64
	MaxBodyBytes int64
	CORSOrigins  []string
}

// API is the HTTP layer.
type API struct {
	deps     Deps
	router   chi.Router
	contract map[string]administered
}

func New(d Deps) *API {
	if d.Ready == nil {
		d.Ready = ReadyProbe{}
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = 15 * time.Minute
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	a := &API{deps: d}
	a.contract = map[string]administered{
		string(community.Namespace): d.Registry,
		string(donation.Namespace):  d.Donations,
		string(escrow.Namespace):    d.Vault,
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, SecurityHeaders, CORS(a.deps.CORSOrigins))
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.deps.MaxBodyBytes) })
	if a.deps.RateBurst > 0 && a.deps.RatePerSec > 0 {
		r.Use(func(next http.Handler) http.Handler {
			return RateLimit(next, a.deps.RateBurst, a.deps.RatePerSec)
		})
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.authenticate)

		r.Get("/info", a.Info)
		r.Post("/auth/token", a.handleAuthToken)
		r.Get("/stats", a.handleStats)
		r.Get("/events/stream", a.handleStream)

		r.Route("/contracts/{contract}", func(r chi.Router) {
			r.Get("/admin", a.getAdmin)
			r.With(requireCaller).Post("/initialize", a.initialize)
		})

		r.Route("/communities", func(r chi.Router) {
			r.Get("/", a.listRecords(mirror.KindCommunity))
			r.With(requireCaller).Post("/", a.registerCommunity)
			r.Get("/{id}", a.getCommunity)
			r.With(requireCaller).Post("/{id}/verify", a.verifyCommunity)
			r.With(requireCaller).Put("/{id}/needs", a.updateNeeds)
			r.With(requireCaller).Post("/{id}/total-received", a.updateTotalReceived)
		})
		r.Get("/representatives/{principal}/communities", a.communitiesByRepresentative)

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", a.listRecords(mirror.KindDelivery))
			r.With(requireCaller).Post("/", a.validateDelivery)
			r.Get("/{id}", a.getDelivery)
			r.With(requireCaller).Post("/{id}/approve", a.approveDelivery)
			r.With(requireCaller).Post("/{id}/reject", a.rejectDelivery)
		})

		r.Route("/donations", func(r chi.Router) {
			r.Get("/", a.listRecords(mirror.KindDonation))
			r.With(requireCaller).Post("/", a.createDonation)
			r.Get("/{id}", a.getDonation)
			r.Get("/{id}/validations", a.validationsByDonation)
			r.With(requireCaller).Post("/{id}/status", a.updateDonationStatus)
		})
		r.Get("/donors/{principal}/donations", a.donationsByDonor)
		r.Get("/recipients/{principal}/donations", a.donationsByRecipient)

		r.Route("/escrows", func(r chi.Router) {
			r.Get("/", a.listRecords(mirror.KindEscrow))
			r.With(requireCaller).Post("/", a.createEscrow)
			r.Get("/{id}", a.getEscrow)
			r.Get("/{id}/custody", a.escrowCustody)
			r.With(requireCaller).Post("/{id}/validate", a.validateEscrow)
			r.With(requireCaller).Post("/{id}/release", a.escrowAction(escrowRelease))
			r.With(requireCaller).Post("/{id}/dispute", a.escrowAction(escrowDispute))
			r.With(requireCaller).Post("/{id}/cancel", a.escrowAction(escrowCancel))
			r.Post("/{id}/expire", a.expireEscrow)
		})
		r.Get("/donors/{principal}/escrows", a.escrowsByDonor)
		r.Get("/recipients/{principal}/escrows", a.escrowsByRecipient)

		r.Get("/assets/{asset}/accounts/{account}/balance", a.getBalance)
		r.With(requireCaller).Post("/assets/{asset}/mint", a.mint)
		r.With(requireCaller).Post("/assets/{asset}/transfer", a.transfer)

		r.With(requireCaller).Post("/proofs/upload-url", a.proofUploadURL)
		r.Get("/proofs/download-url", a.proofDownloadURL)
	})
	return r
}

// Handler returns the instrumented router.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      serviceName,
		"time":      time.Now().UTC().Format(time.RFC3339),
		"version":   a.deps.Version,
		"contracts": []string{string(community.Namespace), string(donation.Namespace), string(escrow.Namespace)},
	})
}
