package state

import (
	"fmt"
	"strings"
)

// Kind discriminates the record families a contract may persist.
type Kind uint8

const (
	KindAdmin Kind = iota + 1
	KindCommunity
	KindDeliveryValidation
	KindCommunitiesByRep
	KindValidationsByDonation
	KindDonation
	KindDonationsByDonor
	KindDonationsByRecipient
	KindEscrow
	KindEscrowsByDonor
	KindEscrowsByRecipient
	KindBalance
	KindHolding
)

var kindNames = map[Kind]string{
	KindAdmin:                 "admin",
	KindCommunity:             "community",
	KindDeliveryValidation:    "delivery_validation",
	KindCommunitiesByRep:      "communities_by_rep",
	KindValidationsByDonation: "validations_by_donation",
	KindDonation:              "donation",
	KindDonationsByDonor:      "donations_by_donor",
	KindDonationsByRecipient:  "donations_by_recipient",
	KindEscrow:                "escrow",
	KindEscrowsByDonor:        "escrows_by_donor",
	KindEscrowsByRecipient:    "escrows_by_recipient",
	KindBalance:               "balance",
	KindHolding:               "holding",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Key addresses one record inside a namespace. Keys can only be built with the
// constructors below, so the set of addressable records is closed.
type Key struct {
	kind  Kind
	scope string
	id    string
}

func (k Key) Kind() Kind     { return k.kind }
func (k Key) Scope() string  { return k.scope }
func (k Key) ID() string     { return k.id }
func (k Key) IsZero() bool   { return k.kind == 0 }
func (k Key) String() string { return strings.Join([]string{k.kind.String(), k.scope, k.id}, "/") }

func AdminKey() Key { return Key{kind: KindAdmin} }

func CommunityKey(id string) Key { return Key{kind: KindCommunity, id: id} }

func DeliveryValidationKey(id string) Key { return Key{kind: KindDeliveryValidation, id: id} }

func CommunitiesByRepKey(representative string) Key {
	return Key{kind: KindCommunitiesByRep, id: representative}
}

func ValidationsByDonationKey(donationID string) Key {
	return Key{kind: KindValidationsByDonation, id: donationID}
}

func DonationKey(id string) Key { return Key{kind: KindDonation, id: id} }

func DonationsByDonorKey(donor string) Key { return Key{kind: KindDonationsByDonor, id: donor} }

func DonationsByRecipientKey(recipient string) Key {
	return Key{kind: KindDonationsByRecipient, id: recipient}
}

func EscrowKey(id string) Key { return Key{kind: KindEscrow, id: id} }

func EscrowsByDonorKey(donor string) Key { return Key{kind: KindEscrowsByDonor, id: donor} }

func EscrowsByRecipientKey(recipient string) Key {
	return Key{kind: KindEscrowsByRecipient, id: recipient}
}

// BalanceKey addresses the custody balance of account for asset.
func BalanceKey(asset, account string) Key {
	return Key{kind: KindBalance, scope: asset, id: account}
}

// HoldingKey addresses funds a contract holds in custody. Holdings never
// share a key with BalanceKey, whatever the holding name.
func HoldingKey(asset, holding string) Key {
	return Key{kind: KindHolding, scope: asset, id: holding}
}

// Namespace isolates the records of one contract instance.
type Namespace string
