package donation

import (
	"context"
	"math/big"
	"strings"
	"time"

	"verida.org/internal/contract"
	"verida.org/internal/state"
)

// Namespace of the donation ledger's records.
const Namespace state.Namespace = "donation_ledger"

type Status string

const (
	StatusCreated   Status = "Created"
	StatusInEscrow  Status = "InEscrow"
	StatusValidated Status = "Validated"
	StatusDelivered Status = "Delivered"
	StatusCompleted Status = "Completed"
	StatusDisputed  Status = "Disputed"
	StatusCancelled Status = "Cancelled"
)

var statuses = map[Status]struct{}{
	StatusCreated: {}, StatusInEscrow: {}, StatusValidated: {}, StatusDelivered: {},
	StatusCompleted: {}, StatusDisputed: {}, StatusCancelled: {},
}

// ParseStatus accepts the declared status names only.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if _, ok := statuses[st]; !ok {
		return "", contract.Validationf(contract.CodeInvalidArgument, "unknown donation status %q", s)
	}
	return st, nil
}

type Donation struct {
	ID          string             `json:"id"`
	Donor       contract.Principal `json:"donor"`
	Recipient   contract.Principal `json:"recipient"`
	Amount      *big.Int           `json:"amount"`
	Description string             `json:"description"`
	Conditions  string             `json:"conditions"`
	Status      Status             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Pledge carries the arguments of CreateDonation.
type Pledge struct {
	ID          string
	Donor       contract.Principal
	Recipient   contract.Principal
	Amount      *big.Int
	Description string
	Conditions  string
}

const (
	EventDonationCreated = "donation_created"
	EventStatusUpdated   = "donation_status_updated"
)

type role int

const (
	roleAnyone role = iota
	roleDonor
	roleRecipient
	roleDonorOrRecipient
)

// updaters maps a target status to who may move a donation into it. The
// current status is not consulted.
var updaters = map[Status]role{
	StatusCreated:   roleAnyone,
	StatusInEscrow:  roleDonor,
	StatusValidated: roleRecipient,
	StatusDelivered: roleAnyone,
	StatusCompleted: roleRecipient,
	StatusDisputed:  roleDonorOrRecipient,
	StatusCancelled: roleDonor,
}

func (r role) allows(d Donation, p contract.Principal) bool {
	switch r {
	case roleDonor:
		return p == d.Donor
	case roleRecipient:
		return p == d.Recipient
	case roleDonorOrRecipient:
		return p == d.Donor || p == d.Recipient
	default:
		return true
	}
}

// Ledger records donations and their role-gated lifecycle.
type Ledger struct {
	host *contract.Host
}

func New(host *contract.Host) *Ledger {
	return &Ledger{host: host}
}

func (l *Ledger) Initialize(ctx context.Context, admin contract.Principal) error {
	return l.host.Invoke(ctx, Namespace, "initialize", func(env *contract.Env) error {
		return contract.Initialize(env, admin)
	})
}

// CreateDonation records a donation in Created and indexes it under both parties.
func (l *Ledger) CreateDonation(ctx context.Context, in Pledge) (string, error) {
	err := l.host.Invoke(ctx, Namespace, "create_donation", func(env *contract.Env) error {
		if err := env.RequireAuth(in.Donor); err != nil {
			return err
		}
		if err := contract.CheckPositive(in.Amount); err != nil {
			return err
		}
		if strings.TrimSpace(in.ID) == "" {
			return contract.Validation(contract.CodeInvalidArgument, "donation id is required")
		}
		if !in.Recipient.Valid() {
			return contract.Validation(contract.CodeInvalidArgument, "recipient is required")
		}
		d := Donation{
			ID:          in.ID,
			Donor:       in.Donor,
			Recipient:   in.Recipient,
			Amount:      new(big.Int).Set(in.Amount),
			Description: in.Description,
			Conditions:  in.Conditions,
			Status:      StatusCreated,
			CreatedAt:   env.Now(),
		}
		if err := env.Store().Set(ctx, state.DonationKey(d.ID), d); err != nil {
			return err
		}
		if err := state.AppendIndex(ctx, env.Store(), state.DonationsByDonorKey(string(d.Donor)), d.ID); err != nil {
			return err
		}
		if err := state.AppendIndex(ctx, env.Store(), state.DonationsByRecipientKey(string(d.Recipient)), d.ID); err != nil {
			return err
		}
		return env.Emit(EventDonationCreated, d.ID, d)
	})
	if err != nil {
		return "", err
	}
	return in.ID, nil
}

// UpdateStatus overwrites the status when updater holds the role required by
// the target status.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, target Status, updater contract.Principal) error {
	return l.host.Invoke(ctx, Namespace, "update_status", func(env *contract.Env) error {
		if err := env.RequireAuth(updater); err != nil {
			return err
		}
		required, ok := updaters[target]
		if !ok {
			return contract.Validationf(contract.CodeInvalidArgument, "unknown donation status %q", target)
		}
		var d Donation
		found, err := env.Store().Get(ctx, state.DonationKey(id), &d)
		if err != nil {
			return err
		}
		if !found {
			return contract.Validationf(contract.CodeNotFound, "donation %q not found", id)
		}
		if !required.allows(d, updater) {
			return contract.Validationf(contract.CodeUnauthorized, "%s may not move donation to %s", updater, target)
		}
		d.Status = target
		if err := env.Store().Set(ctx, state.DonationKey(id), d); err != nil {
			return err
		}
		return env.Emit(EventStatusUpdated, d.ID, d)
	})
}

func (l *Ledger) GetDonation(ctx context.Context, id string) (Donation, bool, error) {
	var d Donation
	var found bool
	err := l.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		found, err = env.Store().Get(ctx, state.DonationKey(id), &d)
		return err
	})
	return d, found, err
}

func (l *Ledger) DonationsByDonor(ctx context.Context, donor contract.Principal) ([]string, error) {
	return l.index(ctx, state.DonationsByDonorKey(string(donor)))
}

func (l *Ledger) DonationsByRecipient(ctx context.Context, recipient contract.Principal) ([]string, error) {
	return l.index(ctx, state.DonationsByRecipientKey(string(recipient)))
}

func (l *Ledger) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := l.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		ok, err = env.Store().Has(ctx, state.DonationKey(id))
		return err
	})
	return ok, err
}

func (l *Ledger) Admin(ctx context.Context) (contract.Principal, bool, error) {
	var admin contract.Principal
	var found bool
	err := l.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		admin, found, err = contract.Admin(env)
		return err
	})
	return admin, found, err
}

func (l *Ledger) index(ctx context.Context, key state.Key) ([]string, error) {
	var ids []string
	err := l.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		ids, err = state.Index(ctx, env.Store(), key)
		return err
	})
	return ids, err
}
