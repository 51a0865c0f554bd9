package token

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hypervisual/banklink/pkg/store"
)

// durableKeyPrefix namespaces token entries in the durable tier.
const durableKeyPrefix = "revolut:token:"

// durableOpTimeout bounds every durable-tier call so a hung backend cannot
// block token issuance from the memory tier.
const durableOpTimeout = 2 * time.Second

// durableTTLHeadroom extends the durable record slightly beyond the access
// token's expiry so a restarted process can still recover a near-expiry
// token and refresh it.
const durableTTLHeadroom = 5 * time.Minute

// Store is the two-tier token store: an in-memory map per company, backed by
// an optional durable tier. The memory tier is authoritative for the life of
// the process; the durable tier is consulted only on memory misses and
// written best-effort.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry

	durable store.Durable
}

// NewStore creates a Store. A nil durable tier means memory-only operation.
func NewStore(durable store.Durable) *Store {
	return &Store{
		entries: make(map[string]Entry),
		durable: durable,
	}
}

// Get returns the entry for a company, or nil if none exists in either tier.
// A durable-tier hit repopulates the memory tier before returning.
func (s *Store) Get(ctx context.Context, company string) *Entry {
	if e := s.Peek(company); e != nil {
		return e
	}

	if s.durable == nil {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, durableOpTimeout)
	defer cancel()

	data, err := s.durable.Get(dctx, durableKeyPrefix+company)
	if err != nil {
		slog.Warn("durable token load failed", "company", company, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		slog.Warn("durable token entry is corrupt", "company", company, "error", err)
		return nil
	}

	s.mu.Lock()
	s.entries[company] = e
	s.mu.Unlock()

	slog.Debug("token loaded from durable tier", "company", company)
	return &e
}

// Peek returns the entry from the memory tier only, without touching the
// durable tier.
func (s *Store) Peek(company string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[company]; ok {
		return &e
	}
	return nil
}

// Set writes the entry to the memory tier and, best-effort, to the durable
// tier. Durable failures are logged and swallowed: the memory tier is
// authoritative while the process lives.
func (s *Store) Set(ctx context.Context, company string, e *Entry) {
	s.mu.Lock()
	s.entries[company] = *e
	s.mu.Unlock()

	if s.durable == nil {
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("marshaling token entry failed", "company", company, "error", err)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, durableOpTimeout)
	defer cancel()

	ttl := e.TTL() + durableTTLHeadroom
	if err := s.durable.Set(dctx, durableKeyPrefix+company, data, ttl); err != nil {
		slog.Warn("durable token persist failed", "company", company, "error", err)
		return
	}
	slog.Debug("token persisted to durable tier", "company", company)
}

// Forget drops a company's entry from the memory tier only. The durable
// record, if any, survives and will repopulate memory on the next Get.
func (s *Store) Forget(company string) {
	s.mu.Lock()
	delete(s.entries, company)
	s.mu.Unlock()
}

// Companies returns the sorted ids of all companies present in the memory
// tier.
func (s *Store) Companies() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
