package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"verida.org/internal/contract"
)

const (
	upsertRowSQL = `
		insert into mirror_records(kind, id, status, amount, timeout_at, payload, updated_at)
		values ($1, $2, $3, $4::numeric, $5, $6::jsonb, $7)
		on conflict (kind, id) do update
		set status = excluded.status,
		    amount = excluded.amount,
		    timeout_at = excluded.timeout_at,
		    payload = excluded.payload,
		    updated_at = excluded.updated_at
		where mirror_records.updated_at <= excluded.updated_at`

	statsSQL = `
		select
			count(*) filter (where kind = 'community'),
			count(*) filter (where kind = 'community' and status = 'Verified'),
			count(*) filter (where kind = 'delivery'),
			count(*) filter (where kind = 'delivery' and status = 'Approved'),
			count(*) filter (where kind = 'donation'),
			coalesce(sum(amount) filter (where kind = 'donation'), 0)::text,
			count(*) filter (where kind = 'escrow'),
			count(*) filter (where kind = 'escrow' and status in ('Active', 'Validated', 'Disputed')),
			coalesce(sum(amount) filter (where kind = 'escrow' and status in ('Active', 'Validated', 'Disputed')), 0)::text
		from mirror_records`

	expiredSQL = `
		select id from mirror_records
		where kind = 'escrow' and status = 'Active' and timeout_at < $1
		order by timeout_at, id
		limit $2`

	listSQL = `
		select payload from mirror_records
		where kind = $1
		order by updated_at desc, id
		limit $2 offset $3`
)

// Postgres mirrors records into the mirror_records table.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

// Publish upserts the projected row. Older events never overwrite newer rows.
func (p *Postgres) Publish(ctx context.Context, evt contract.Event) error {
	row, ok, err := Project(evt)
	if err != nil || !ok {
		return err
	}
	var amount sql.NullString
	if row.Amount != nil {
		amount = sql.NullString{String: row.Amount.String(), Valid: true}
	}
	var timeout sql.NullTime
	if row.Timeout != nil {
		timeout = sql.NullTime{Time: row.Timeout.UTC(), Valid: true}
	}
	payload := string(row.Payload)
	if payload == "" {
		payload = "{}"
	}
	if _, err := p.db.ExecContext(ctx, upsertRowSQL,
		string(row.Kind), row.ID, row.Status, amount, timeout, payload, row.At.UTC()); err != nil {
		return fmt.Errorf("mirror %s %s: %w", row.Kind, row.ID, err)
	}
	return nil
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.db.QueryRowContext(ctx, statsSQL).Scan(
		&s.Communities, &s.VerifiedCommunities,
		&s.Deliveries, &s.ApprovedDeliveries,
		&s.Donations, &s.DonatedTotal,
		&s.Escrows, &s.OpenEscrows, &s.EscrowedInCustody,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("mirror stats: %w", err)
	}
	return s, nil
}

func (p *Postgres) ExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, expiredSQL, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) List(ctx context.Context, kind Kind, limit, offset int) ([]json.RawMessage, error) {
	limit, offset = Page(limit, offset)
	rows, err := p.db.QueryContext(ctx, listSQL, string(kind), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("mirror list %s: %w", kind, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(payload))
	}
	return out, rows.Err()
}
