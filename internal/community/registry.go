package community

import (
	"context"
	"math"
	"math/big"
	"strings"

	"verida.org/internal/contract"
	"verida.org/internal/state"
)

// Registry manages community lifecycle and delivery validation bookkeeping.
type Registry struct {
	host *contract.Host
}

func New(host *contract.Host) *Registry {
	return &Registry{host: host}
}

func (r *Registry) Initialize(ctx context.Context, admin contract.Principal) error {
	return r.host.Invoke(ctx, Namespace, "initialize", func(env *contract.Env) error {
		return contract.Initialize(env, admin)
	})
}

// RegisterCommunity creates a Pending community owned by its representative.
func (r *Registry) RegisterCommunity(ctx context.Context, in Registration) (string, error) {
	err := r.host.Invoke(ctx, Namespace, "register_community", func(env *contract.Env) error {
		if err := env.RequireAuth(in.Representative); err != nil {
			return err
		}
		if strings.TrimSpace(in.ID) == "" {
			return contract.Validation(contract.CodeInvalidArgument, "community id is required")
		}
		c := Community{
			ID:                 in.ID,
			Name:               in.Name,
			Location:           in.Location,
			Description:        in.Description,
			Representative:     in.Representative,
			VerificationStatus: VerificationPending,
			CreatedAt:          env.Now(),
			Needs:              []string{},
			TotalReceived:      new(big.Int),
		}
		if err := env.Store().Set(ctx, state.CommunityKey(c.ID), c); err != nil {
			return err
		}
		if err := state.AppendIndex(ctx, env.Store(), state.CommunitiesByRepKey(string(c.Representative)), c.ID); err != nil {
			return err
		}
		return env.Emit(EventCommunityRegistered, c.ID, c)
	})
	if err != nil {
		return "", err
	}
	return in.ID, nil
}

// VerifyCommunity marks a community Verified from any current status.
func (r *Registry) VerifyCommunity(ctx context.Context, id string, admin contract.Principal) error {
	return r.host.Invoke(ctx, Namespace, "verify_community", func(env *contract.Env) error {
		if err := requireStoredAdmin(env, admin); err != nil {
			return err
		}
		c, err := loadCommunity(env, id)
		if err != nil {
			return err
		}
		c.VerificationStatus = VerificationVerified
		return saveCommunity(env, c, EventCommunityVerified)
	})
}

// UpdateNeeds replaces the needs list wholesale.
func (r *Registry) UpdateNeeds(ctx context.Context, id string, needs []string, representative contract.Principal) error {
	return r.host.Invoke(ctx, Namespace, "update_needs", func(env *contract.Env) error {
		if err := env.RequireAuth(representative); err != nil {
			return err
		}
		c, err := loadCommunity(env, id)
		if err != nil {
			return err
		}
		if c.Representative != representative {
			return contract.Validation(contract.CodeUnauthorized, "only the representative can update needs")
		}
		if needs == nil {
			needs = []string{}
		}
		c.Needs = needs
		return saveCommunity(env, c, EventNeedsUpdated)
	})
}

// ValidateDelivery records a Pending delivery validation. Only the
// representative of a Verified community may report deliveries.
func (r *Registry) ValidateDelivery(ctx context.Context, in DeliveryReport) (string, error) {
	err := r.host.Invoke(ctx, Namespace, "validate_delivery", func(env *contract.Env) error {
		if err := env.RequireAuth(in.Validator); err != nil {
			return err
		}
		if strings.TrimSpace(in.ID) == "" {
			return contract.Validation(contract.CodeInvalidArgument, "validation id is required")
		}
		c, err := loadCommunity(env, in.CommunityID)
		if err != nil {
			return err
		}
		if c.Representative != in.Validator {
			return contract.Validation(contract.CodeUnauthorized, "only the representative can validate deliveries")
		}
		if c.VerificationStatus != VerificationVerified {
			return contract.Validation(contract.CodeInvalidState, "community must be verified to validate deliveries")
		}
		v := DeliveryValidation{
			ID:            in.ID,
			DonationID:    in.DonationID,
			CommunityID:   in.CommunityID,
			Validator:     in.Validator,
			GoodsReceived: in.GoodsReceived,
			Quantity:      in.Quantity,
			DeliveryProof: in.DeliveryProof,
			Status:        DeliveryPending,
			CreatedAt:     env.Now(),
		}
		if err := env.Store().Set(ctx, state.DeliveryValidationKey(v.ID), v); err != nil {
			return err
		}
		if err := state.AppendIndex(ctx, env.Store(), state.ValidationsByDonationKey(v.DonationID), v.ID); err != nil {
			return err
		}
		return env.Emit(EventDeliveryValidated, v.ID, v)
	})
	if err != nil {
		return "", err
	}
	return in.ID, nil
}

// ApproveDelivery moves a Pending validation to Approved and counts the
// delivery on the referenced community.
func (r *Registry) ApproveDelivery(ctx context.Context, validationID string, approver contract.Principal) error {
	return r.host.Invoke(ctx, Namespace, "approve_delivery", func(env *contract.Env) error {
		if err := requireStoredAdmin(env, approver); err != nil {
			return err
		}
		v, err := loadPendingValidation(env, validationID)
		if err != nil {
			return err
		}
		c, err := loadCommunity(env, v.CommunityID)
		if err != nil {
			return err
		}
		if c.DeliveriesCount == math.MaxUint32 {
			return contract.ErrOverflow
		}
		c.DeliveriesCount++
		v.Status = DeliveryApproved
		if err := saveValidation(env, v, EventDeliveryApproved); err != nil {
			return err
		}
		return saveCommunity(env, c, EventDeliveryCounted)
	})
}

// RejectDelivery moves a Pending validation to Rejected. Counters are untouched.
func (r *Registry) RejectDelivery(ctx context.Context, validationID string, rejector contract.Principal) error {
	return r.host.Invoke(ctx, Namespace, "reject_delivery", func(env *contract.Env) error {
		if err := requireStoredAdmin(env, rejector); err != nil {
			return err
		}
		v, err := loadPendingValidation(env, validationID)
		if err != nil {
			return err
		}
		v.Status = DeliveryRejected
		return saveValidation(env, v, EventDeliveryRejected)
	})
}

// UpdateTotalReceived adds a signed amount to the community's running total.
// The total has no floor.
func (r *Registry) UpdateTotalReceived(ctx context.Context, communityID string, amount *big.Int, admin contract.Principal) error {
	return r.host.Invoke(ctx, Namespace, "update_total_received", func(env *contract.Env) error {
		if err := requireStoredAdmin(env, admin); err != nil {
			return err
		}
		if amount == nil {
			return contract.ErrInvalidAmount
		}
		c, err := loadCommunity(env, communityID)
		if err != nil {
			return err
		}
		total, err := contract.AddChecked(c.TotalReceived, amount)
		if err != nil {
			return err
		}
		c.TotalReceived = total
		return saveCommunity(env, c, EventTotalReceived)
	})
}

func (r *Registry) GetCommunity(ctx context.Context, id string) (Community, bool, error) {
	var c Community
	var found bool
	err := r.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		found, err = env.Store().Get(ctx, state.CommunityKey(id), &c)
		return err
	})
	return c, found, err
}

func (r *Registry) GetDeliveryValidation(ctx context.Context, id string) (DeliveryValidation, bool, error) {
	var v DeliveryValidation
	var found bool
	err := r.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		found, err = env.Store().Get(ctx, state.DeliveryValidationKey(id), &v)
		return err
	})
	return v, found, err
}

func (r *Registry) CommunitiesByRepresentative(ctx context.Context, representative contract.Principal) ([]string, error) {
	return r.index(ctx, state.CommunitiesByRepKey(string(representative)))
}

func (r *Registry) ValidationsByDonation(ctx context.Context, donationID string) ([]string, error) {
	return r.index(ctx, state.ValidationsByDonationKey(donationID))
}

// Exists reports whether a community with id is registered.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		ok, err = env.Store().Has(ctx, state.CommunityKey(id))
		return err
	})
	return ok, err
}

func (r *Registry) Admin(ctx context.Context) (contract.Principal, bool, error) {
	var admin contract.Principal
	var found bool
	err := r.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		admin, found, err = contract.Admin(env)
		return err
	})
	return admin, found, err
}

func (r *Registry) index(ctx context.Context, key state.Key) ([]string, error) {
	var ids []string
	err := r.host.Query(ctx, Namespace, func(env *contract.Env) error {
		var err error
		ids, err = state.Index(ctx, env.Store(), key)
		return err
	})
	return ids, err
}

// requireStoredAdmin checks that claimed authorized the call and is the
// configured admin.
func requireStoredAdmin(env *contract.Env, claimed contract.Principal) error {
	if err := env.RequireAuth(claimed); err != nil {
		return err
	}
	admin, found, err := contract.Admin(env)
	if err != nil {
		return err
	}
	if !found {
		return contract.ErrAdminNotConfigured
	}
	if admin != claimed {
		return contract.Validation(contract.CodeUnauthorized, "only the admin can perform this operation")
	}
	return nil
}

func loadCommunity(env *contract.Env, id string) (Community, error) {
	var c Community
	found, err := env.Store().Get(env.Context(), state.CommunityKey(id), &c)
	if err != nil {
		return Community{}, err
	}
	if !found {
		return Community{}, contract.Validationf(contract.CodeNotFound, "community %q not found", id)
	}
	if c.TotalReceived == nil {
		c.TotalReceived = new(big.Int)
	}
	return c, nil
}

func saveCommunity(env *contract.Env, c Community, event string) error {
	if err := env.Store().Set(env.Context(), state.CommunityKey(c.ID), c); err != nil {
		return err
	}
	return env.Emit(event, c.ID, c)
}

func loadPendingValidation(env *contract.Env, id string) (DeliveryValidation, error) {
	var v DeliveryValidation
	found, err := env.Store().Get(env.Context(), state.DeliveryValidationKey(id), &v)
	if err != nil {
		return DeliveryValidation{}, err
	}
	if !found {
		return DeliveryValidation{}, contract.Validationf(contract.CodeNotFound, "delivery validation %q not found", id)
	}
	if v.Status != DeliveryPending {
		return DeliveryValidation{}, contract.Validationf(contract.CodeInvalidState, "delivery validation is %s, not Pending", v.Status)
	}
	return v, nil
}

func saveValidation(env *contract.Env, v DeliveryValidation, event string) error {
	if err := env.Store().Set(env.Context(), state.DeliveryValidationKey(v.ID), v); err != nil {
		return err
	}
	return env.Emit(event, v.ID, v)
}
