package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	maxAttempts = 5

	selectStateSQL = `select value from contract_state where namespace=$1 and kind=$2 and scope=$3 and id=$4`
	upsertStateSQL = `
		insert into contract_state(namespace, kind, scope, id, value, updated_at)
		values ($1, $2, $3, $4, $5, now())
		on conflict (namespace, kind, scope, id) do update
		set value = excluded.value, updated_at = now()`
)

// Postgres persists contract state in the contract_state table. Every Update
// runs in a serializable transaction and is retried on serialization failure.
type Postgres struct {
	db *sql.DB
}

var _ Backend = (*Postgres)(nil)

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing handle.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Update(ctx context.Context, fn func(Txn) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = p.update(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func (p *Postgres) update(ctx context.Context, fn func(Txn) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	txn := newBuffered(pgSource{tx: tx}, false)
	if err := fn(txn); err != nil {
		return err
	}
	for _, w := range txn.pending() {
		if _, err := tx.ExecContext(ctx, upsertStateSQL,
			string(w.ref.ns), w.ref.key.Kind().String(), w.ref.key.Scope(), w.ref.key.ID(), string(w.value)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) View(ctx context.Context, fn func(Txn) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(newBuffered(pgSource{tx: tx}, true)); err != nil {
		return err
	}
	return tx.Commit()
}

type pgSource struct {
	tx *sql.Tx
}

func (s pgSource) load(ctx context.Context, r ref) ([]byte, bool, error) {
	var value []byte
	err := s.tx.QueryRowContext(ctx, selectStateSQL,
		string(r.ns), r.key.Kind().String(), r.key.Scope(), r.key.ID()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
