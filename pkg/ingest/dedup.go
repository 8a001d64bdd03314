package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupTable answers "insert if absent" for a fingerprint, returning
// whether this call was the first (canonical) occurrence. It is the
// "protected insert-if-absent" primitive named in §5's shared-resource
// policy for the fingerprint table.
type DedupTable interface {
	// InsertIfAbsent records fingerprint -> tipID if fingerprint is unseen.
	// Returns (canonicalTipID, isNew). When isNew is false, canonicalTipID
	// is the tip_id recorded on first occurrence.
	InsertIfAbsent(ctx context.Context, fingerprint, tipID string) (canonicalTipID string, isNew bool, err error)
}

// MemoryDedupTable is an in-process DedupTable for QUEUE_MODE=memory / tests.
type MemoryDedupTable struct {
	mu    sync.Mutex
	table map[string]string
}

// NewMemoryDedupTable constructs an empty in-memory dedup table.
func NewMemoryDedupTable() *MemoryDedupTable {
	return &MemoryDedupTable{table: make(map[string]string)}
}

// InsertIfAbsent implements DedupTable.
func (m *MemoryDedupTable) InsertIfAbsent(_ context.Context, fingerprint, tipID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.table[fingerprint]; ok {
		return existing, false, nil
	}
	m.table[fingerprint] = tipID
	return tipID, true, nil
}

// RedisDedupTable implements DedupTable with a Redis SETNX, so QUEUE_MODE=
// durable deployments share one dedup table across every ingestion worker
// rather than each process guessing in isolation.
type RedisDedupTable struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDedupTable wires a DedupTable backed by client. ttl bounds how
// long a fingerprint is remembered; zero means "forever" (Redis KEEPTTL
// semantics with no expiry set).
func NewRedisDedupTable(client *redis.Client, ttl time.Duration) *RedisDedupTable {
	return &RedisDedupTable{client: client, prefix: "cybertip:fingerprint:", ttl: ttl}
}

// InsertIfAbsent implements DedupTable via SET NX, matching the atomic
// insert-if-absent contract the in-memory table gives callers.
func (r *RedisDedupTable) InsertIfAbsent(ctx context.Context, fingerprint, tipID string) (string, bool, error) {
	key := r.prefix + fingerprint
	ok, err := r.client.SetNX(ctx, key, tipID, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("ingest: dedup SETNX: %w", err)
	}
	if ok {
		return tipID, true, nil
	}
	existing, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", false, fmt.Errorf("ingest: dedup GET after NX miss: %w", err)
	}
	return existing, false, nil
}
