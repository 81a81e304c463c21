package ledger

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"verida.org/internal/ids"
	"verida.org/internal/state"
)

// Namespace holds custody balances. It is shared by every contract that
// moves assets, which is what lets a transfer commit with the contract call.
const Namespace state.Namespace = "asset_ledger"

// Money is an amount of one asset in its smallest unit. No floats.
type Money struct {
	Asset  string   `json:"asset"`
	Amount *big.Int `json:"amount"`
}

func NewMoney(asset string, amount int64) Money {
	return Money{Asset: asset, Amount: big.NewInt(amount)}
}

func (m Money) IsPositive() bool { return m.Amount != nil && m.Amount.Sign() > 0 }

// Balance is the custody position of one account in one asset.
type Balance struct {
	Account string   `json:"account"`
	Asset   string   `json:"asset"`
	Amount  *big.Int `json:"amount"`
}

// Transaction is a double-entry transfer result.
type Transaction struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Asset     string    `json:"asset"`
	Amount    *big.Int  `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
}

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount (must be > 0)")
	ErrInvalidAsset      = errors.New("invalid asset")
	ErrInvalidAccount    = errors.New("invalid account")
)

func validate(m Money, accounts ...string) error {
	if strings.TrimSpace(m.Asset) == "" {
		return ErrInvalidAsset
	}
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	for _, a := range accounts {
		if strings.TrimSpace(a) == "" {
			return ErrInvalidAccount
		}
	}
	return nil
}

func newID() string {
	return ids.New(ids.Transaction)
}
