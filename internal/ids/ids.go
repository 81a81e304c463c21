package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes of generated record ids.
const (
	Community   = "cmty"
	Delivery    = "dlv"
	Donation    = "don"
	Escrow      = "esc"
	Transaction = "tx"
)

// MaxLen bounds client-supplied ids.
const MaxLen = 64

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier "<prefix>_<ulid>".
func New(prefix string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Valid reports whether a client-supplied id is usable as a record key.
func Valid(id string) bool {
	if id == "" || len(id) > MaxLen {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' || r == '.')
	}) < 0
}
