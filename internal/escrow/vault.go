package escrow

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"verida.org/internal/contract"
	"verida.org/internal/state"
)

// Vault holds donor funds in custody until a validator approves delivery,
// a party disputes, the donor cancels, or the lock period runs out.
type Vault struct {
	host   *contract.Host
	assets AssetTransfer
}

func New(host *contract.Host, assets AssetTransfer) *Vault {
	return &Vault{host: host, assets: assets}
}

func (v *Vault) Initialize(ctx context.Context, admin contract.Principal) error {
	return v.host.Invoke(ctx, Namespace, "initialize", func(env *contract.Env) error {
		return contract.Initialize(env, admin)
	})
}

// CreateEscrow locks the donor's funds and records an Active escrow. The
// custody transfer commits together with the record or not at all.
func (v *Vault) CreateEscrow(ctx context.Context, in Terms) (string, error) {
	err := v.host.Invoke(ctx, Namespace, "create_escrow", func(env *contract.Env) error {
		if err := env.RequireAuth(in.Donor); err != nil {
			return err
		}
		if err := contract.CheckPositive(in.Amount); err != nil {
			return err
		}
		if strings.TrimSpace(in.ID) == "" {
			return contract.Validation(contract.CodeInvalidArgument, "escrow id is required")
		}
		if strings.TrimSpace(in.Asset) == "" {
			return contract.Validation(contract.CodeInvalidArgument, "asset is required")
		}
		if !in.Recipient.Valid() || !in.Validator.Valid() {
			return contract.Validation(contract.CodeInvalidArgument, "recipient and validator are required")
		}
		if in.TimeoutHours > MaxTimeoutHours {
			return contract.Validationf(contract.CodeInvalidTimeout, "timeout_hours must not exceed %d", MaxTimeoutHours)
		}

		now := env.Now()
		e := Escrow{
			ID:         in.ID,
			Donor:      in.Donor,
			Recipient:  in.Recipient,
			Validator:  in.Validator,
			Amount:     new(big.Int).Set(in.Amount),
			Asset:      in.Asset,
			Conditions: in.Conditions,
			Status:     StatusActive,
			CreatedAt:  now,
			Timeout:    now.Add(time.Duration(in.TimeoutHours) * time.Hour),
		}
		if _, err := v.assets.Hold(ctx, env.Txn(), string(e.Donor), CustodyAccount(e.ID), e.Money(), ReasonLock); err != nil {
			return fmt.Errorf("lock escrow funds: %w", err)
		}
		if err := env.Store().Set(ctx, state.EscrowKey(e.ID), e); err != nil {
			return err
		}
		if err := state.AppendIndex(ctx, env.Store(), state.EscrowsByDonorKey(string(e.Donor)), e.ID); err != nil {
			return err
		}
		if err := state.AppendIndex(ctx, env.Store(), state.EscrowsByRecipientKey(string(e.Recipient)), e.ID); err != nil {
			return err
		}
		return env.Emit(EventEscrowCreated, e.ID, e)
	})
	if err != nil {
		return "", err
	}
	return in.ID, nil
}

// ValidateEscrow is the validator's approval, allowed while Active and not
// past the timeout.
func (v *Vault) ValidateEscrow(ctx context.Context, id string, validator contract.Principal) error {
	return v.host.Invoke(ctx, Namespace, "validate_escrow", func(env *contract.Env) error {
		if err := env.RequireAuth(validator); err != nil {
			return err
		}
		e, err := load(env, id)
		if err != nil {
			return err
		}
		if e.Validator != validator {
			return contract.Validation(contract.CodeUnauthorized, "only the validator can validate the escrow")
		}
		if e.Status != StatusActive {
			return invalidState(e, "validate")
		}
		if env.Now().After(e.Timeout) {
			return contract.ErrExpired
		}
		e.Status = StatusValidated
		return save(env, e, EventEscrowValidated)
	})
}

// ReleaseEscrow pays the full amount to the recipient.
func (v *Vault) ReleaseEscrow(ctx context.Context, id string, caller contract.Principal) error {
	return v.host.Invoke(ctx, Namespace, "release_escrow", func(env *contract.Env) error {
		if err := env.RequireAuth(caller); err != nil {
			return err
		}
		e, err := load(env, id)
		if err != nil {
			return err
		}
		if caller != e.Validator && caller != e.Recipient {
			return contract.Validation(contract.CodeUnauthorized, "only the validator or recipient can release the escrow")
		}
		if e.Status != StatusValidated {
			return invalidState(e, "release")
		}
		if err := v.payout(env, e, string(e.Recipient), ReasonRelease); err != nil {
			return err
		}
		e.Status = StatusReleased
		return save(env, e, EventEscrowReleased)
	})
}

// DisputeEscrow freezes the escrow. Funds stay in custody.
func (v *Vault) DisputeEscrow(ctx context.Context, id string, caller contract.Principal) error {
	return v.host.Invoke(ctx, Namespace, "dispute_escrow", func(env *contract.Env) error {
		if err := env.RequireAuth(caller); err != nil {
			return err
		}
		e, err := load(env, id)
		if err != nil {
			return err
		}
		if caller != e.Donor && caller != e.Recipient {
			return contract.Validation(contract.CodeUnauthorized, "only the donor or recipient can dispute the escrow")
		}
		if e.Status != StatusActive && e.Status != StatusValidated {
			return invalidState(e, "dispute")
		}
		e.Status = StatusDisputed
		return save(env, e, EventEscrowDisputed)
	})
}

// CancelEscrow refunds the donor of an Active escrow.
func (v *Vault) CancelEscrow(ctx context.Context, id string, caller contract.Principal) error {
	return v.host.Invoke(ctx, Namespace, "cancel_escrow", func(env *contract.Env) error {
		if err := env.RequireAuth(caller); err != nil {
			return err
		}
		e, err := load(env, id)
		if err != nil {
			return err
		}
		if caller != e.Donor {
			return contract.Validation(contract.CodeUnauthorized, "only the donor can cancel the escrow")
		}
		if e.Status != StatusActive {
			return invalidState(e, "cancel")
		}
		if err := v.payout(env, e, string(e.Donor), ReasonRefund); err != nil {
			return err
		}
		e.Status = StatusCancelled
		return save(env, e, EventEscrowCancelled)
	})
}

// HandleExpiration refunds the donor of an Active escrow past its timeout.
// Anyone may call it.
func (v *Vault) HandleExpiration(ctx context.Context, id string) error {
	return v.host.Invoke(ctx, Namespace, "handle_expiration", func(env *contract.Env) error {
		e, err := load(env, id)
		if err != nil {
			return err
		}
		if !env.Now().After(e.Timeout) {
			return contract.ErrNotExpired
		}
		if e.Status != StatusActive {
			return invalidState(e, "expire")
		}
		if err := v.payout(env, e, string(e.Donor), ReasonRefund); err != nil {
			return err
		}
		e.Status = StatusExpired
		return save(env, e, EventEscrowExpired)
	})
}

func (v *Vault) GetEscrow(ctx context.Context, id string) (Escrow, bool, error) {
	var e Escrow
	var found bool
	err := v.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		found, err = env.Store().Get(ctx, state.EscrowKey(id), &e)
		return err
	})
	return e, found, err
}

func (v *Vault) EscrowsByDonor(ctx context.Context, donor contract.Principal) ([]string, error) {
	return v.index(ctx, state.EscrowsByDonorKey(string(donor)))
}

func (v *Vault) EscrowsByRecipient(ctx context.Context, recipient contract.Principal) ([]string, error) {
	return v.index(ctx, state.EscrowsByRecipientKey(string(recipient)))
}

func (v *Vault) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := v.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		ok, err = env.Store().Has(ctx, state.EscrowKey(id))
		return err
	})
	return ok, err
}

func (v *Vault) Admin(ctx context.Context) (contract.Principal, bool, error) {
	var admin contract.Principal
	var found bool
	err := v.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		admin, found, err = contract.Admin(env)
		return err
	})
	return admin, found, err
}

func (v *Vault) index(ctx context.Context, key state.Key) ([]string, error) {
	var ids []string
	err := v.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		ids, err = state.Index(ctx, env.Store(), key)
		return err
	})
	return ids, err
}

func (v *Vault) payout(env *contract.Env, e Escrow, to, reason string) error {
	if _, err := v.assets.Settle(env.Context(), env.Txn(), CustodyAccount(e.ID), to, e.Money(), reason); err != nil {
		return fmt.Errorf("pay out escrow %s: %w", e.ID, err)
	}
	return nil
}

func load(env *contract.Env, id string) (Escrow, error) {
	var e Escrow
	found, err := env.Store().Get(env.Context(), state.EscrowKey(id), &e)
	if err != nil {
		return Escrow{}, err
	}
	if !found {
		return Escrow{}, contract.Validationf(contract.CodeNotFound, "escrow %q not found", id)
	}
	return e, nil
}

func save(env *contract.Env, e Escrow, event string) error {
	if err := env.Store().Set(env.Context(), state.EscrowKey(e.ID), e); err != nil {
		return err
	}
	return env.Emit(event, e.ID, e)
}

func invalidState(e Escrow, op string) error {
	return contract.Validationf(contract.CodeInvalidState, "cannot %s escrow in status %s", op, e.Status)
}
