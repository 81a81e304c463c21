package escrow

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verida.org/internal/contract"
	"verida.org/internal/contract/contracttest"
	"verida.org/internal/ledger"
)

const (
	donor     contract.Principal = "GDONOR"
	recipient contract.Principal = "GRECIPIENT"
	validator contract.Principal = "GVALIDATOR"
	stranger  contract.Principal = "GSTRANGER"
	asset                        = "XLM"
)

type fixture struct {
	vault   *Vault
	env     *contracttest.Env
	custody *ledger.Custody
}

func newFixture(t *testing.T, funds int64) *fixture {
	t.Helper()
	env := contracttest.New()
	custody := ledger.NewCustody(env.Backend)
	if funds > 0 {
		_, err := custody.Mint(context.Background(), string(donor), ledger.NewMoney(asset, funds))
		require.NoError(t, err)
	}
	return &fixture{vault: New(env.Host, ledger.Book{}), env: env, custody: custody}
}

func (f *fixture) balance(t *testing.T, account string) int64 {
	t.Helper()
	b, err := f.custody.GetBalance(context.Background(), asset, account)
	require.NoError(t, err)
	return b.Amount.Int64()
}

func (f *fixture) held(t *testing.T, id string) int64 {
	t.Helper()
	b, err := f.custody.GetHolding(context.Background(), asset, CustodyAccount(id))
	require.NoError(t, err)
	return b.Amount.Int64()
}

func (f *fixture) status(t *testing.T, id string) Status {
	t.Helper()
	e, found, err := f.vault.GetEscrow(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return e.Status
}

func (f *fixture) create(t *testing.T, id string, amount int64, hours uint64) {
	t.Helper()
	_, err := f.vault.CreateEscrow(contracttest.As(donor), terms(id, amount, hours))
	require.NoError(t, err)
}

func terms(id string, amount int64, hours uint64) Terms {
	return Terms{
		ID:           id,
		Donor:        donor,
		Recipient:    recipient,
		Validator:    validator,
		Amount:       big.NewInt(amount),
		Asset:        asset,
		Conditions:   "photos of delivered goods",
		TimeoutHours: hours,
	}
}

func TestCreateValidateReleaseScenario(t *testing.T) {
	f := newFixture(t, 5000)
	f.create(t, "e1", 1000, 24)

	require.Equal(t, int64(4000), f.balance(t, string(donor)))
	require.Equal(t, int64(1000), f.held(t, "e1"))

	e, _, _ := f.vault.GetEscrow(context.Background(), "e1")
	require.Equal(t, StatusActive, e.Status)
	require.True(t, e.Timeout.Equal(e.CreatedAt.Add(24*3600*time.Second)))

	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "e1", validator))
	require.NoError(t, f.vault.ReleaseEscrow(contracttest.As(recipient), "e1", recipient))

	require.Equal(t, StatusReleased, f.status(t, "e1"))
	require.Equal(t, int64(1000), f.balance(t, string(recipient)))
	require.Zero(t, f.held(t, "e1"))

	byDonor, _ := f.vault.EscrowsByDonor(context.Background(), donor)
	byRecipient, _ := f.vault.EscrowsByRecipient(context.Background(), recipient)
	require.Equal(t, []string{"e1"}, byDonor)
	require.Equal(t, []string{"e1"}, byRecipient)
}

func TestExpirationScenario(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 1000, 1)

	err := f.vault.HandleExpiration(contracttest.As(stranger), "e1")
	require.ErrorIs(t, err, contract.ErrNotExpired)

	f.env.Clock.Advance(3600 * time.Second)
	err = f.vault.HandleExpiration(contracttest.As(stranger), "e1")
	require.ErrorIs(t, err, contract.ErrNotExpired, "expiry requires now strictly after timeout")

	f.env.Clock.Advance(time.Second)
	require.NoError(t, f.vault.HandleExpiration(contracttest.As(stranger), "e1"))
	require.Equal(t, StatusExpired, f.status(t, "e1"))
	require.Equal(t, int64(1000), f.balance(t, string(donor)))
	require.Zero(t, f.held(t, "e1"))

	err = f.vault.HandleExpiration(contracttest.As(stranger), "e1")
	require.ErrorIs(t, err, contract.ErrInvalidState)
	require.Equal(t, int64(1000), f.balance(t, string(donor)))
}

func TestCreateRejectsNonPositiveAmounts(t *testing.T) {
	for _, amount := range []int64{0, -1} {
		f := newFixture(t, 1000)
		_, err := f.vault.CreateEscrow(contracttest.As(donor), terms("e1", amount, 24))
		require.ErrorIs(t, err, contract.ErrInvalidAmount)

		ok, err := f.vault.Exists(context.Background(), "e1")
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, int64(1000), f.balance(t, string(donor)))
	}
}

func TestFailedTransferCreatesNoRecord(t *testing.T) {
	f := newFixture(t, 100)
	_, err := f.vault.CreateEscrow(contracttest.As(donor), terms("e1", 1000, 24))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	ok, _ := f.vault.Exists(context.Background(), "e1")
	require.False(t, ok)
	ids, _ := f.vault.EscrowsByDonor(context.Background(), donor)
	require.Empty(t, ids)
	require.Equal(t, int64(100), f.balance(t, string(donor)))
}

func TestCreateRequiresDonorAuthorization(t *testing.T) {
	f := newFixture(t, 1000)
	_, err := f.vault.CreateEscrow(contracttest.As(stranger), terms("e1", 10, 24))
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	require.Equal(t, int64(1000), f.balance(t, string(donor)))
}

func TestCreateRejectsExcessiveTimeout(t *testing.T) {
	f := newFixture(t, 1000)
	_, err := f.vault.CreateEscrow(contracttest.As(donor), terms("e1", 10, MaxTimeoutHours+1))
	require.ErrorIs(t, err, contract.ErrInvalidTimeout)
}

func TestValidateEscrowRules(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 100, 1)

	err := f.vault.ValidateEscrow(contracttest.As(recipient), "e1", recipient)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	f.env.Clock.Advance(2 * time.Hour)
	err = f.vault.ValidateEscrow(contracttest.As(validator), "e1", validator)
	require.ErrorIs(t, err, contract.ErrExpired)
	require.Equal(t, StatusActive, f.status(t, "e1"))

	f.create(t, "e2", 100, 1)
	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "e2", validator))
	err = f.vault.ValidateEscrow(contracttest.As(validator), "e2", validator)
	require.ErrorIs(t, err, contract.ErrInvalidState)

	err = f.vault.ValidateEscrow(contracttest.As(validator), "missing", validator)
	require.ErrorIs(t, err, contract.ErrNotFound)
}

func TestValidateEscrowAtTimeoutBoundary(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 100, 1)
	f.create(t, "e2", 100, 1)

	f.env.Clock.Advance(3600 * time.Second)
	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "e1", validator))
	require.Equal(t, StatusValidated, f.status(t, "e1"))

	f.env.Clock.Advance(time.Second)
	err := f.vault.ValidateEscrow(contracttest.As(validator), "e2", validator)
	require.ErrorIs(t, err, contract.ErrExpired)
	require.Equal(t, StatusActive, f.status(t, "e2"))
}

func TestCreateAcceptsZeroTimeoutHours(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 100, 0)

	e, _, err := f.vault.GetEscrow(context.Background(), "e1")
	require.NoError(t, err)
	require.True(t, e.Timeout.Equal(e.CreatedAt))

	err = f.vault.HandleExpiration(contracttest.As(stranger), "e1")
	require.ErrorIs(t, err, contract.ErrNotExpired)
	f.env.Clock.Advance(time.Second)
	require.NoError(t, f.vault.HandleExpiration(contracttest.As(stranger), "e1"))
	require.Equal(t, int64(1000), f.balance(t, string(donor)))
}

func TestCustodyUnreachableByNamesakePrincipal(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 1000, 24)

	namesake := contract.Principal(CustodyAccount("e1"))
	_, err := f.vault.CreateEscrow(contracttest.As(namesake), Terms{
		ID:           "e2",
		Donor:        namesake,
		Recipient:    stranger,
		Validator:    stranger,
		Amount:       big.NewInt(1000),
		Asset:        asset,
		TimeoutHours: 24,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	ok, _ := f.vault.Exists(context.Background(), "e2")
	require.False(t, ok)
	require.Equal(t, int64(1000), f.held(t, "e1"))

	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "e1", validator))
	require.NoError(t, f.vault.ReleaseEscrow(contracttest.As(recipient), "e1", recipient))
	require.Equal(t, int64(1000), f.balance(t, string(recipient)))
	require.Zero(t, f.balance(t, string(stranger)))
	require.Zero(t, f.held(t, "e1"))
}

func TestReleaseRequiresValidatedStatus(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 300, 24)

	err := f.vault.ReleaseEscrow(contracttest.As(validator), "e1", validator)
	require.ErrorIs(t, err, contract.ErrInvalidState)
	require.Equal(t, int64(300), f.held(t, "e1"))

	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "e1", validator))
	err = f.vault.ReleaseEscrow(contracttest.As(donor), "e1", donor)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	require.NoError(t, f.vault.ReleaseEscrow(contracttest.As(validator), "e1", validator))
	require.Equal(t, int64(300), f.balance(t, string(recipient)))

	err = f.vault.ReleaseEscrow(contracttest.As(validator), "e1", validator)
	require.ErrorIs(t, err, contract.ErrInvalidState)
	require.Equal(t, int64(300), f.balance(t, string(recipient)))
}

func TestDisputeFreezesFunds(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "active", 100, 24)
	f.create(t, "validated", 100, 24)
	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "validated", validator))

	err := f.vault.DisputeEscrow(contracttest.As(validator), "active", validator)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	require.NoError(t, f.vault.DisputeEscrow(contracttest.As(donor), "active", donor))
	require.NoError(t, f.vault.DisputeEscrow(contracttest.As(recipient), "validated", recipient))
	require.Equal(t, StatusDisputed, f.status(t, "active"))
	require.Equal(t, StatusDisputed, f.status(t, "validated"))
	require.Equal(t, int64(100), f.held(t, "active"))

	err = f.vault.DisputeEscrow(contracttest.As(donor), "active", donor)
	require.ErrorIs(t, err, contract.ErrInvalidState)

	err = f.vault.ReleaseEscrow(contracttest.As(recipient), "validated", recipient)
	require.ErrorIs(t, err, contract.ErrInvalidState)
}

func TestCancelRefundsDonor(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 400, 24)

	err := f.vault.CancelEscrow(contracttest.As(recipient), "e1", recipient)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	require.NoError(t, f.vault.CancelEscrow(contracttest.As(donor), "e1", donor))
	require.Equal(t, StatusCancelled, f.status(t, "e1"))
	require.Equal(t, int64(1000), f.balance(t, string(donor)))

	f.create(t, "e2", 400, 24)
	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "e2", validator))
	err = f.vault.CancelEscrow(contracttest.As(donor), "e2", donor)
	require.ErrorIs(t, err, contract.ErrInvalidState)
}

func TestValidatedEscrowDoesNotExpire(t *testing.T) {
	f := newFixture(t, 1000)
	f.create(t, "e1", 100, 1)
	require.NoError(t, f.vault.ValidateEscrow(contracttest.As(validator), "e1", validator))

	f.env.Clock.Advance(48 * time.Hour)
	err := f.vault.HandleExpiration(context.Background(), "e1")
	require.ErrorIs(t, err, contract.ErrInvalidState)
	require.Equal(t, StatusValidated, f.status(t, "e1"))
}

func TestCustodyReasonsCoverMovingEvents(t *testing.T) {
	require.Equal(t, ReasonLock, custodyReasons[EventEscrowCreated])
	require.Equal(t, ReasonRefund, custodyReasons[EventEscrowExpired])
	_, moves := custodyReasons[EventEscrowDisputed]
	require.False(t, moves)

	// Observer must tolerate failed calls and foreign contracts.
	CountCustody(context.Background(), contract.Call{Contract: "donation_ledger"})
	CountCustody(context.Background(), contract.Call{Contract: string(Namespace), Err: contract.ErrNotFound})
}
