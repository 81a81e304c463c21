package ledger

import (
	"context"
	"math/big"

	"verida.org/internal/state"
)

// Service defines standalone ledger operations, each in its own transaction.
type Service interface {
	GetBalance(ctx context.Context, asset, account string) (Balance, error)
	GetHolding(ctx context.Context, asset, holding string) (Balance, error)
	Mint(ctx context.Context, to string, m Money) (Transaction, error)
	Transfer(ctx context.Context, from, to string, m Money) (Transaction, error)
}

// Custody implements Service on top of a state backend.
type Custody struct {
	backend state.Backend
	book    Book
}

var _ Service = (*Custody)(nil)

func NewCustody(backend state.Backend) *Custody {
	return &Custody{backend: backend}
}

func (c *Custody) GetBalance(ctx context.Context, asset, account string) (Balance, error) {
	var amount *big.Int
	err := c.backend.View(ctx, func(txn state.Txn) error {
		var err error
		amount, err = c.book.Balance(ctx, txn, asset, account)
		return err
	})
	if err != nil {
		return Balance{}, err
	}
	return Balance{Account: account, Asset: asset, Amount: amount}, nil
}

// GetHolding reports what a contract keeps in custody under holding.
func (c *Custody) GetHolding(ctx context.Context, asset, holding string) (Balance, error) {
	var amount *big.Int
	err := c.backend.View(ctx, func(txn state.Txn) error {
		var err error
		amount, err = c.book.Held(ctx, txn, asset, holding)
		return err
	})
	if err != nil {
		return Balance{}, err
	}
	return Balance{Account: holding, Asset: asset, Amount: amount}, nil
}

func (c *Custody) Mint(ctx context.Context, to string, m Money) (Transaction, error) {
	var tx Transaction
	err := c.backend.Update(ctx, func(txn state.Txn) error {
		var err error
		tx, err = c.book.Mint(ctx, txn, to, m)
		return err
	})
	return tx, err
}

// Transfer moves funds between two principal accounts. Holdings are out of
// its reach.
func (c *Custody) Transfer(ctx context.Context, from, to string, m Money) (Transaction, error) {
	var tx Transaction
	err := c.backend.Update(ctx, func(txn state.Txn) error {
		var err error
		tx, err = c.book.Transfer(ctx, txn, from, to, m, "transfer")
		return err
	})
	return tx, err
}
