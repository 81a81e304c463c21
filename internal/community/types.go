package community

import (
	"math/big"
	"time"

	"verida.org/internal/contract"
	"verida.org/internal/state"
)

// Namespace of the community registry's records.
const Namespace state.Namespace = "community_registry"

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "Pending"
	VerificationVerified VerificationStatus = "Verified"
	VerificationRejected VerificationStatus = "Rejected"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "Pending"
	DeliveryApproved DeliveryStatus = "Approved"
	DeliveryRejected DeliveryStatus = "Rejected"
)

// Community is a registered beneficiary. Needs are owned by the
// representative, verification by the admin.
type Community struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Location           string             `json:"location"`
	Description        string             `json:"description"`
	Representative     contract.Principal `json:"representative"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	CreatedAt          time.Time          `json:"created_at"`
	Needs              []string           `json:"needs"`
	DeliveriesCount    uint32             `json:"deliveries_count"`
	TotalReceived      *big.Int           `json:"total_received"`
}

// DeliveryValidation is a representative's claim that goods for a donation
// arrived.
type DeliveryValidation struct {
	ID            string             `json:"id"`
	DonationID    string             `json:"donation_id"`
	CommunityID   string             `json:"community_id"`
	Validator     contract.Principal `json:"validator"`
	GoodsReceived string             `json:"goods_received"`
	Quantity      uint32             `json:"quantity"`
	DeliveryProof string             `json:"delivery_proof"`
	Status        DeliveryStatus     `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Registration carries the arguments of RegisterCommunity.
type Registration struct {
	ID             string
	Name           string
	Location       string
	Description    string
	Representative contract.Principal
}

// DeliveryReport carries the arguments of ValidateDelivery.
type DeliveryReport struct {
	ID            string
	DonationID    string
	CommunityID   string
	Validator     contract.Principal
	GoodsReceived string
	Quantity      uint32
	DeliveryProof string
}

// Event names emitted by the registry.
const (
	EventCommunityRegistered = "community_registered"
	EventCommunityVerified   = "community_verified"
	EventNeedsUpdated        = "needs_updated"
	EventDeliveryValidated   = "delivery_validated"
	EventDeliveryApproved    = "delivery_approved"
	EventDeliveryCounted     = "delivery_counted"
	EventDeliveryRejected    = "delivery_rejected"
	EventTotalReceived       = "total_received_updated"
)
