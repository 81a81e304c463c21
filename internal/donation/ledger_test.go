package donation

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"verida.org/internal/contract"
	"verida.org/internal/contract/contracttest"
)

const (
	donor     contract.Principal = "GDONOR"
	recipient contract.Principal = "GRECIPIENT"
	stranger  contract.Principal = "GSTRANGER"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(contracttest.New().Host)
}

func create(t *testing.T, l *Ledger, id string) {
	t.Helper()
	_, err := l.CreateDonation(contracttest.As(donor), Pledge{
		ID:          id,
		Donor:       donor,
		Recipient:   recipient,
		Amount:      big.NewInt(250),
		Description: "school supplies",
		Conditions:  "deliver before term",
	})
	require.NoError(t, err)
}

func TestCreateDonationIndexesBothParties(t *testing.T) {
	l := newLedger(t)
	create(t, l, "d1")
	create(t, l, "d2")

	d, found, err := l.GetDonation(context.Background(), "d1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, StatusCreated, d.Status)
	require.Equal(t, int64(250), d.Amount.Int64())

	byDonor, err := l.DonationsByDonor(context.Background(), donor)
	require.NoError(t, err)
	require.Equal(t, []string{"d1", "d2"}, byDonor)
	byRecipient, err := l.DonationsByRecipient(context.Background(), recipient)
	require.NoError(t, err)
	require.Equal(t, []string{"d1", "d2"}, byRecipient)
}

func TestCreateDonationRejectsNonPositiveAmounts(t *testing.T) {
	for _, amount := range []int64{0, -1, -1000} {
		l := newLedger(t)
		_, err := l.CreateDonation(contracttest.As(donor), Pledge{ID: "d1", Donor: donor, Recipient: recipient, Amount: big.NewInt(amount)})
		require.ErrorIs(t, err, contract.ErrInvalidAmount)

		ok, err := l.Exists(context.Background(), "d1")
		require.NoError(t, err)
		require.False(t, ok)
		ids, _ := l.DonationsByDonor(context.Background(), donor)
		require.Empty(t, ids)
	}
}

func TestCreateDonationRequiresDonorAuthorization(t *testing.T) {
	l := newLedger(t)
	_, err := l.CreateDonation(contracttest.As(stranger), Pledge{ID: "d1", Donor: donor, Recipient: recipient, Amount: big.NewInt(1)})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
}

func TestUpdateStatusRoleTable(t *testing.T) {
	cases := []struct {
		target  Status
		updater contract.Principal
		allowed bool
	}{
		{StatusInEscrow, donor, true},
		{StatusInEscrow, recipient, false},
		{StatusValidated, recipient, true},
		{StatusValidated, donor, false},
		{StatusCompleted, recipient, true},
		{StatusCompleted, donor, false},
		{StatusDisputed, donor, true},
		{StatusDisputed, recipient, true},
		{StatusDisputed, stranger, false},
		{StatusCancelled, donor, true},
		{StatusCancelled, recipient, false},
		{StatusCreated, stranger, true},
		{StatusDelivered, stranger, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.target)+"/"+string(tc.updater), func(t *testing.T) {
			l := newLedger(t)
			create(t, l, "d1")
			err := l.UpdateStatus(contracttest.As(tc.updater), "d1", tc.target, tc.updater)
			d, _, _ := l.GetDonation(context.Background(), "d1")
			if tc.allowed {
				require.NoError(t, err)
				require.Equal(t, tc.target, d.Status)
				return
			}
			require.ErrorIs(t, err, contract.ErrUnauthorized)
			require.Equal(t, StatusCreated, d.Status)
		})
	}
}

func TestUpdateStatusIgnoresCurrentStatus(t *testing.T) {
	l := newLedger(t)
	create(t, l, "d1")
	require.NoError(t, l.UpdateStatus(contracttest.As(recipient), "d1", StatusCompleted, recipient))
	require.NoError(t, l.UpdateStatus(contracttest.As(stranger), "d1", StatusCreated, stranger))

	d, _, _ := l.GetDonation(context.Background(), "d1")
	require.Equal(t, StatusCreated, d.Status)
}

func TestUpdateStatusErrors(t *testing.T) {
	l := newLedger(t)
	err := l.UpdateStatus(contracttest.As(donor), "missing", StatusInEscrow, donor)
	require.ErrorIs(t, err, contract.ErrNotFound)

	create(t, l, "d1")
	err = l.UpdateStatus(contracttest.As(donor), "d1", Status("Lost"), donor)
	require.Equal(t, contract.CodeInvalidArgument, contract.CodeOf(err))

	err = l.UpdateStatus(contracttest.As(stranger), "d1", StatusInEscrow, donor)
	require.ErrorIs(t, err, contract.ErrUnauthorized)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("InEscrow")
	require.NoError(t, err)
	require.Equal(t, StatusInEscrow, st)

	_, err = ParseStatus("inescrow")
	require.Error(t, err)
}
