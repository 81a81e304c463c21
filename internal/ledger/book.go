package ledger

import (
	"context"
	"math/big"
	"time"

	"verida.org/internal/state"
)

// Book applies custody movements inside a caller's transaction. Nothing it
// writes survives unless that transaction commits.
//
// Accounts belong to principals. Holdings are funds a contract keeps on
// behalf of a record; they live under their own keys, so no account name can
// reach them.
type Book struct{}

func (b Book) Balance(ctx context.Context, txn state.Txn, asset, account string) (*big.Int, error) {
	return b.read(ctx, txn, state.BalanceKey(asset, account))
}

// Held returns the amount kept in a holding.
func (b Book) Held(ctx context.Context, txn state.Txn, asset, holding string) (*big.Int, error) {
	return b.read(ctx, txn, state.HoldingKey(asset, holding))
}

// Mint credits freshly issued units to an account.
func (b Book) Mint(ctx context.Context, txn state.Txn, to string, m Money) (Transaction, error) {
	if err := validate(m, to); err != nil {
		return Transaction{}, err
	}
	if err := b.credit(ctx, txn, state.BalanceKey(m.Asset, to), m.Amount); err != nil {
		return Transaction{}, err
	}
	return newTransaction("", to, m, "mint"), nil
}

// Transfer debits from and credits to with the same amount.
func (b Book) Transfer(ctx context.Context, txn state.Txn, from, to string, m Money, reason string) (Transaction, error) {
	if err := validate(m, from, to); err != nil {
		return Transaction{}, err
	}
	return b.move(ctx, txn, state.BalanceKey(m.Asset, from), state.BalanceKey(m.Asset, to), from, to, m, reason)
}

// Hold moves funds from an account into a holding.
func (b Book) Hold(ctx context.Context, txn state.Txn, from, holding string, m Money, reason string) (Transaction, error) {
	if err := validate(m, from, holding); err != nil {
		return Transaction{}, err
	}
	return b.move(ctx, txn, state.BalanceKey(m.Asset, from), state.HoldingKey(m.Asset, holding), from, holding, m, reason)
}

// Settle pays funds out of a holding into an account.
func (b Book) Settle(ctx context.Context, txn state.Txn, holding, to string, m Money, reason string) (Transaction, error) {
	if err := validate(m, holding, to); err != nil {
		return Transaction{}, err
	}
	return b.move(ctx, txn, state.HoldingKey(m.Asset, holding), state.BalanceKey(m.Asset, to), holding, to, m, reason)
}

func (b Book) move(ctx context.Context, txn state.Txn, src, dst state.Key, from, to string, m Money, reason string) (Transaction, error) {
	bal, err := b.read(ctx, txn, src)
	if err != nil {
		return Transaction{}, err
	}
	if bal.Cmp(m.Amount) < 0 {
		return Transaction{}, ErrInsufficientFunds
	}
	if src != dst {
		if err := txn.Scope(Namespace).Set(ctx, src, new(big.Int).Sub(bal, m.Amount)); err != nil {
			return Transaction{}, err
		}
		if err := b.credit(ctx, txn, dst, m.Amount); err != nil {
			return Transaction{}, err
		}
	}
	return newTransaction(from, to, m, reason), nil
}

func (b Book) read(ctx context.Context, txn state.Txn, key state.Key) (*big.Int, error) {
	var amount big.Int
	found, err := txn.Scope(Namespace).Get(ctx, key, &amount)
	if err != nil {
		return nil, err
	}
	if !found {
		return new(big.Int), nil
	}
	return &amount, nil
}

func (b Book) credit(ctx context.Context, txn state.Txn, key state.Key, amount *big.Int) error {
	bal, err := b.read(ctx, txn, key)
	if err != nil {
		return err
	}
	return txn.Scope(Namespace).Set(ctx, key, new(big.Int).Add(bal, amount))
}

func newTransaction(from, to string, m Money, reason string) Transaction {
	return Transaction{
		ID:        newID(),
		CreatedAt: time.Now().UTC(),
		From:      from,
		To:        to,
		Asset:     m.Asset,
		Amount:    new(big.Int).Set(m.Amount),
		Reason:    reason,
	}
}
