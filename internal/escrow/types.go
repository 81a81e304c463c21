package escrow

import (
	"context"
	"math/big"
	"time"

	"verida.org/internal/contract"
	"verida.org/internal/ledger"
	"verida.org/internal/state"
)

// Namespace of the vault's records.
const Namespace state.Namespace = "escrow_vault"

// MaxTimeoutHours bounds the requested lock period (ten years).
const MaxTimeoutHours = 24 * 365 * 10

type Status string

const (
	StatusActive    Status = "Active"
	StatusValidated Status = "Validated"
	StatusReleased  Status = "Released"
	StatusDisputed  Status = "Disputed"
	StatusCancelled Status = "Cancelled"
	StatusExpired   Status = "Expired"
)

type Escrow struct {
	ID         string             `json:"id"`
	Donor      contract.Principal `json:"donor"`
	Recipient  contract.Principal `json:"recipient"`
	Validator  contract.Principal `json:"validator"`
	Amount     *big.Int           `json:"amount"`
	Asset      string             `json:"asset"`
	Conditions string             `json:"conditions"`
	Status     Status             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	Timeout    time.Time          `json:"timeout"`
}

// Money is the escrowed amount.
func (e Escrow) Money() ledger.Money {
	return ledger.Money{Asset: e.Asset, Amount: new(big.Int).Set(e.Amount)}
}

// Terms carries the arguments of CreateEscrow.
type Terms struct {
	ID           string
	Donor        contract.Principal
	Recipient    contract.Principal
	Validator    contract.Principal
	Amount       *big.Int
	Asset        string
	Conditions   string
	TimeoutHours uint64
}

// AssetTransfer moves funds into and out of vault custody inside the
// transaction of the current call.
type AssetTransfer interface {
	Hold(ctx context.Context, txn state.Txn, from, holding string, m ledger.Money, reason string) (ledger.Transaction, error)
	Settle(ctx context.Context, txn state.Txn, holding, to string, m ledger.Money, reason string) (ledger.Transaction, error)
}

var _ AssetTransfer = ledger.Book{}

// CustodyAccount names the vault holding for one escrow. Holdings are kept
// apart from principal accounts, so no caller can spend them directly.
func CustodyAccount(escrowID string) string {
	return string(Namespace) + "/" + escrowID
}

const (
	EventEscrowCreated   = "escrow_created"
	EventEscrowValidated = "escrow_validated"
	EventEscrowReleased  = "escrow_released"
	EventEscrowDisputed  = "escrow_disputed"
	EventEscrowCancelled = "escrow_cancelled"
	EventEscrowExpired   = "escrow_expired"
)

// Transfer reasons recorded on custody movements.
const (
	ReasonLock    = "escrow_lock"
	ReasonRelease = "escrow_release"
	ReasonRefund  = "escrow_refund"
)

// custodyReasons maps committed escrow events to the custody movement they carry.
var custodyReasons = map[string]string{
	EventEscrowCreated:   ReasonLock,
	EventEscrowReleased:  ReasonRelease,
	EventEscrowCancelled: ReasonRefund,
	EventEscrowExpired:   ReasonRefund,
}
