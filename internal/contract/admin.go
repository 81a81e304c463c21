package contract

import (
	"math/big"

	"verida.org/internal/state"
)

// Initialize records admin as the contract administrator. It requires the
// admin's authorization and refuses to overwrite an existing admin.
func Initialize(env *Env, admin Principal) error {
	if err := env.RequireAuth(admin); err != nil {
		return err
	}
	exists, err := env.Store().Has(env.Context(), state.AdminKey())
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyInitialized
	}
	if err := env.Store().Set(env.Context(), state.AdminKey(), admin); err != nil {
		return err
	}
	return env.Emit("initialized", string(admin), map[string]any{"admin": admin})
}

// Admin returns the configured administrator, if any.
func Admin(env *Env) (Principal, bool, error) {
	var admin Principal
	found, err := env.Store().Get(env.Context(), state.AdminKey(), &admin)
	if err != nil || !found {
		return "", false, err
	}
	return admin, true, nil
}

// RequireAdmin loads the administrator and checks its authorization.
func RequireAdmin(env *Env) (Principal, error) {
	admin, found, err := Admin(env)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrAdminNotConfigured
	}
	if err := env.RequireAuth(admin); err != nil {
		return "", err
	}
	return admin, nil
}

var (
	maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minAmount = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// CheckPositive validates a transfer or donation amount: strictly positive
// and representable as a signed 128-bit integer.
func CheckPositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(maxAmount) > 0 {
		return ErrOverflow
	}
	return nil
}

// AddChecked returns a+b, failing when the sum leaves the signed 128-bit range.
func AddChecked(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int)
	if a != nil {
		sum.Set(a)
	}
	if b != nil {
		sum.Add(sum, b)
	}
	if sum.Cmp(maxAmount) > 0 || sum.Cmp(minAmount) < 0 {
		return nil, ErrOverflow
	}
	return sum, nil
}
