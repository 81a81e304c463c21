// Package mirror keeps a queryable, non-authoritative copy of contract records
// built from committed events. Contract state stays the source of truth.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"verida.org/internal/community"
	"verida.org/internal/contract"
	"verida.org/internal/donation"
	"verida.org/internal/escrow"
)

type Kind string

const (
	KindCommunity Kind = "community"
	KindDelivery  Kind = "delivery"
	KindDonation  Kind = "donation"
	KindEscrow    Kind = "escrow"
)

// Row is the projection of one contract record.
type Row struct {
	Kind    Kind
	ID      string
	Status  string
	Amount  *big.Int
	Timeout *time.Time
	At      time.Time
	Payload json.RawMessage
}

// Stats aggregates the mirror. Amount totals are decimal strings.
type Stats struct {
	Communities         int64  `json:"communities"`
	VerifiedCommunities int64  `json:"verified_communities"`
	Deliveries          int64  `json:"deliveries"`
	ApprovedDeliveries  int64  `json:"approved_deliveries"`
	Donations           int64  `json:"donations"`
	DonatedTotal        string `json:"donated_total"`
	Escrows             int64  `json:"escrows"`
	OpenEscrows         int64  `json:"open_escrows"`
	EscrowedInCustody   string `json:"escrowed_in_custody"`
}

// Store is implemented by the Postgres and in-memory mirrors.
type Store interface {
	contract.Publisher
	Stats(ctx context.Context) (Stats, error)
	// ExpiredCandidates lists Active escrows whose timeout is before now.
	ExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]string, error)
	// List pages through the records of one kind, most recently updated first.
	List(ctx context.Context, kind Kind, limit, offset int) ([]json.RawMessage, error)
}

// Page bounds for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Page clamps a requested page to the supported bounds.
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var deliveryEvents = map[string]struct{}{
	community.EventDeliveryValidated: {},
	community.EventDeliveryApproved:  {},
	community.EventDeliveryRejected:  {},
}

// openEscrow reports whether funds of an escrow in status s are still in custody.
func openEscrow(s string) bool {
	switch escrow.Status(s) {
	case escrow.StatusActive, escrow.StatusValidated, escrow.StatusDisputed:
		return true
	}
	return false
}

// Project maps a committed event to the row it updates. Events that carry no
// record, such as initialization, report false.
func Project(evt contract.Event) (Row, bool, error) {
	row := Row{ID: evt.ID, At: evt.At, Payload: evt.Record}
	switch evt.Contract {
	case string(community.Namespace):
		if _, ok := deliveryEvents[evt.Name]; ok {
			var v community.DeliveryValidation
			if err := decode(evt, &v); err != nil {
				return Row{}, false, err
			}
			row.Kind, row.Status = KindDelivery, string(v.Status)
			return row, true, nil
		}
		if evt.Name == "initialized" {
			return Row{}, false, nil
		}
		var c community.Community
		if err := decode(evt, &c); err != nil {
			return Row{}, false, err
		}
		row.Kind, row.Status = KindCommunity, string(c.VerificationStatus)
		row.Amount = c.TotalReceived
		return row, true, nil
	case string(donation.Namespace):
		if evt.Name == "initialized" {
			return Row{}, false, nil
		}
		var d donation.Donation
		if err := decode(evt, &d); err != nil {
			return Row{}, false, err
		}
		row.Kind, row.Status, row.Amount = KindDonation, string(d.Status), d.Amount
		return row, true, nil
	case string(escrow.Namespace):
		if evt.Name == "initialized" {
			return Row{}, false, nil
		}
		var e escrow.Escrow
		if err := decode(evt, &e); err != nil {
			return Row{}, false, err
		}
		timeout := e.Timeout
		row.Kind, row.Status, row.Amount, row.Timeout = KindEscrow, string(e.Status), e.Amount, &timeout
		return row, true, nil
	}
	return Row{}, false, nil
}

func decode(evt contract.Event, dst any) error {
	if err := json.Unmarshal(evt.Record, dst); err != nil {
		return fmt.Errorf("decode %s/%s record: %w", evt.Contract, evt.Name, err)
	}
	return nil
}
