package mirror

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"sync"
	"time"

	"verida.org/internal/community"
	"verida.org/internal/contract"
	"verida.org/internal/escrow"
)

// Memory is the mirror used when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	rows map[Kind]map[string]Row
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rows: make(map[Kind]map[string]Row)}
}

func (m *Memory) Publish(_ context.Context, evt contract.Event) error {
	row, ok, err := Project(evt)
	if err != nil || !ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.rows[row.Kind]
	if byID == nil {
		byID = make(map[string]Row)
		m.rows[row.Kind] = byID
	}
	if prev, ok := byID[row.ID]; ok && prev.At.After(row.At) {
		return nil
	}
	byID[row.ID] = row
	return nil
}

// Row returns the mirrored row of kind k.
func (m *Memory) Row(k Kind, id string) (Row, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[k][id]
	return row, ok
}

func (m *Memory) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	donated, custody := new(big.Int), new(big.Int)
	for _, r := range m.rows[KindCommunity] {
		s.Communities++
		if r.Status == string(community.VerificationVerified) {
			s.VerifiedCommunities++
		}
	}
	for _, r := range m.rows[KindDelivery] {
		s.Deliveries++
		if r.Status == string(community.DeliveryApproved) {
			s.ApprovedDeliveries++
		}
	}
	for _, r := range m.rows[KindDonation] {
		s.Donations++
		if r.Amount != nil {
			donated.Add(donated, r.Amount)
		}
	}
	for _, r := range m.rows[KindEscrow] {
		s.Escrows++
		if openEscrow(r.Status) {
			s.OpenEscrows++
			if r.Amount != nil {
				custody.Add(custody, r.Amount)
			}
		}
	}
	s.DonatedTotal, s.EscrowedInCustody = donated.String(), custody.String()
	return s, nil
}

func (m *Memory) ExpiredCandidates(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []string{}
	for id, r := range m.rows[KindEscrow] {
		if r.Status == string(escrow.StatusActive) && r.Timeout != nil && r.Timeout.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *Memory) List(_ context.Context, kind Kind, limit, offset int) ([]json.RawMessage, error) {
	limit, offset = Page(limit, offset)
	m.mu.RLock()
	rows := make([]Row, 0, len(m.rows[kind]))
	for _, r := range m.rows[kind] {
		rows = append(rows, r)
	}
	m.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].At.Equal(rows[j].At) {
			return rows[i].At.After(rows[j].At)
		}
		return rows[i].ID < rows[j].ID
	})
	out := []json.RawMessage{}
	for i := offset; i < len(rows) && len(out) < limit; i++ {
		out = append(out, rows[i].Payload)
	}
	return out, nil
}
