package community

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"verida.org/internal/contract"
	"verida.org/internal/contract/contracttest"
)

const (
	admin contract.Principal = "GADMIN"
	rep   contract.Principal = "GREP"
	other contract.Principal = "GOTHER"
)

func setup(t *testing.T) (*Registry, *contracttest.Env) {
	t.Helper()
	env := contracttest.New()
	r := New(env.Host)
	require.NoError(t, r.Initialize(contracttest.As(admin), admin))
	return r, env
}

func register(t *testing.T, r *Registry, id string, representative contract.Principal) {
	t.Helper()
	_, err := r.RegisterCommunity(contracttest.As(representative), Registration{
		ID:             id,
		Name:           "Comunidad " + id,
		Location:       "Oaxaca",
		Description:    "water project",
		Representative: representative,
	})
	require.NoError(t, err)
}

func TestRegisterThenGetRoundTrip(t *testing.T) {
	r, env := setup(t)
	register(t, r, "c1", rep)

	c, found, err := r.GetCommunity(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, VerificationPending, c.VerificationStatus)
	require.Zero(t, c.DeliveriesCount)
	require.Zero(t, c.TotalReceived.Sign())
	require.Empty(t, c.Needs)
	require.Equal(t, rep, c.Representative)
	require.True(t, env.Clock.Now().Equal(c.CreatedAt))

	ids, err := r.CommunitiesByRepresentative(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids)

	ok, err := r.Exists(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegisterRequiresRepresentativeAuthorization(t *testing.T) {
	r, _ := setup(t)
	_, err := r.RegisterCommunity(contracttest.As(other), Registration{ID: "c1", Representative: rep})
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	ok, err := r.Exists(context.Background(), "c1")
	require.NoError(t, err)
	require.False(t, ok)
	ids, _ := r.CommunitiesByRepresentative(context.Background(), rep)
	require.Empty(t, ids)
}

func TestReadsOfAbsentRecordsAreEmpty(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	_, found, err := r.GetCommunity(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = r.GetDeliveryValidation(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	ids, err := r.ValidationsByDonation(ctx, "missing")
	require.NoError(t, err)
	require.NotNil(t, ids)
	require.Empty(t, ids)
}

func TestVerifyCommunityRequiresStoredAdmin(t *testing.T) {
	r, _ := setup(t)
	register(t, r, "c1", rep)

	err := r.VerifyCommunity(contracttest.As(other), "c1", other)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	err = r.VerifyCommunity(contracttest.As(admin), "missing", admin)
	require.ErrorIs(t, err, contract.ErrNotFound)

	require.NoError(t, r.VerifyCommunity(contracttest.As(admin), "c1", admin))
	c, _, _ := r.GetCommunity(context.Background(), "c1")
	require.Equal(t, VerificationVerified, c.VerificationStatus)
}

func TestAdminOperationsWithoutInitialization(t *testing.T) {
	env := contracttest.New()
	r := New(env.Host)
	register(t, r, "c1", rep)

	err := r.VerifyCommunity(contracttest.As(admin), "c1", admin)
	require.ErrorIs(t, err, contract.ErrAdminNotConfigured)
	require.Equal(t, contract.ConfigurationError, contract.KindOf(err))

	_, found, err := r.Admin(context.Background())
	require.NoError(t, err)
	require.False(t, found)
}

func TestInitializeCannotBeRepeated(t *testing.T) {
	r, _ := setup(t)
	err := r.Initialize(contracttest.As(other), other)
	require.ErrorIs(t, err, contract.ErrAlreadyInitialized)

	got, found, err := r.Admin(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, admin, got)
}

func TestUpdateNeedsOnlyByRepresentative(t *testing.T) {
	r, _ := setup(t)
	register(t, r, "c1", rep)

	err := r.UpdateNeeds(contracttest.As(other), "c1", []string{"rice"}, other)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	require.NoError(t, r.UpdateNeeds(contracttest.As(rep), "c1", []string{"rice", "water"}, rep))
	require.NoError(t, r.UpdateNeeds(contracttest.As(rep), "c1", []string{"blankets"}, rep))
	c, _, _ := r.GetCommunity(context.Background(), "c1")
	require.Equal(t, []string{"blankets"}, c.Needs)
}

func TestValidateDeliveryRequiresVerifiedCommunity(t *testing.T) {
	r, _ := setup(t)
	register(t, r, "c1", rep)

	report := DeliveryReport{ID: "v1", DonationID: "d1", CommunityID: "c1", Validator: rep, GoodsReceived: "rice", Quantity: 10, DeliveryProof: "ipfs://proof"}
	_, err := r.ValidateDelivery(contracttest.As(rep), report)
	require.ErrorIs(t, err, contract.ErrInvalidState)

	require.NoError(t, r.VerifyCommunity(contracttest.As(admin), "c1", admin))

	wrong := report
	wrong.Validator = other
	_, err = r.ValidateDelivery(contracttest.As(other), wrong)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	id, err := r.ValidateDelivery(contracttest.As(rep), report)
	require.NoError(t, err)
	require.Equal(t, "v1", id)

	v, found, err := r.GetDeliveryValidation(context.Background(), "v1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, DeliveryPending, v.Status)
	require.Equal(t, uint32(10), v.Quantity)

	ids, _ := r.ValidationsByDonation(context.Background(), "d1")
	require.Equal(t, []string{"v1"}, ids)
}

func verifiedWithValidation(t *testing.T, r *Registry, community, validation string) {
	t.Helper()
	register(t, r, community, rep)
	require.NoError(t, r.VerifyCommunity(contracttest.As(admin), community, admin))
	_, err := r.ValidateDelivery(contracttest.As(rep), DeliveryReport{ID: validation, DonationID: "d-" + validation, CommunityID: community, Validator: rep})
	require.NoError(t, err)
}

func TestApproveDeliveryIncrementsOnlyTargetCommunity(t *testing.T) {
	r, _ := setup(t)
	verifiedWithValidation(t, r, "c1", "v1")
	verifiedWithValidation(t, r, "c2", "v2")

	require.NoError(t, r.ApproveDelivery(contracttest.As(admin), "v1", admin))

	c1, _, _ := r.GetCommunity(context.Background(), "c1")
	c2, _, _ := r.GetCommunity(context.Background(), "c2")
	require.Equal(t, uint32(1), c1.DeliveriesCount)
	require.Equal(t, uint32(0), c2.DeliveriesCount)

	v, _, _ := r.GetDeliveryValidation(context.Background(), "v1")
	require.Equal(t, DeliveryApproved, v.Status)

	err := r.ApproveDelivery(contracttest.As(admin), "v1", admin)
	require.ErrorIs(t, err, contract.ErrInvalidState)
	c1, _, _ = r.GetCommunity(context.Background(), "c1")
	require.Equal(t, uint32(1), c1.DeliveriesCount)
}

func TestRejectDeliveryNeverTouchesCounters(t *testing.T) {
	r, _ := setup(t)
	verifiedWithValidation(t, r, "c1", "v1")

	err := r.RejectDelivery(contracttest.As(rep), "v1", rep)
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	require.NoError(t, r.RejectDelivery(contracttest.As(admin), "v1", admin))
	c, _, _ := r.GetCommunity(context.Background(), "c1")
	require.Zero(t, c.DeliveriesCount)
	v, _, _ := r.GetDeliveryValidation(context.Background(), "v1")
	require.Equal(t, DeliveryRejected, v.Status)
}

func TestUpdateTotalReceivedAllowsNegativeTotals(t *testing.T) {
	r, _ := setup(t)
	register(t, r, "c1", rep)

	require.NoError(t, r.UpdateTotalReceived(contracttest.As(admin), "c1", big.NewInt(500), admin))
	require.NoError(t, r.UpdateTotalReceived(contracttest.As(admin), "c1", big.NewInt(-800), admin))

	c, _, _ := r.GetCommunity(context.Background(), "c1")
	require.Equal(t, int64(-300), c.TotalReceived.Int64())

	err := r.UpdateTotalReceived(contracttest.As(rep), "c1", big.NewInt(1), rep)
	require.ErrorIs(t, err, contract.ErrUnauthorized)
}

func TestEventsPublishedOnlyAfterCommit(t *testing.T) {
	r, env := setup(t)
	before := len(env.Events.Events())

	_, err := r.RegisterCommunity(contracttest.As(other), Registration{ID: "c1", Representative: rep})
	require.Error(t, err)
	require.Len(t, env.Events.Events(), before)

	register(t, r, "c1", rep)
	events := env.Events.Events()
	require.Len(t, events, before+1)
	last := events[len(events)-1]
	require.Equal(t, EventCommunityRegistered, last.Name)
	require.Equal(t, string(Namespace), last.Contract)
	require.Equal(t, "c1", last.ID)
}
