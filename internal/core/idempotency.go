package core

import (
	"SparkLedger/internal/observability"
	"container/list"
	"time"
)

const (
	tierLRU      = "lru"
	tierPostgres = "postgres"
)

// DBIdempotencyChecker looks up applied commands in the command log.
type DBIdempotencyChecker interface {
	IsDuplicate(kind string, commandID string) (bool, error)
}

// IdempotencyChecker deduplicates commands on kind:command_id. Recent keys
// live in an in-memory LRU; misses fall back to the optional db checker.
// Only accessed under the engine lock.
type IdempotencyChecker struct {
	lru     *IdempotencyLRU
	db      DBIdempotencyChecker
	stats   *IdempotencyMetrics
	metrics *observability.Metrics
}

func NewIdempotencyChecker(capacity int, db DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:     NewIdempotencyLRU(capacity),
		db:      db,
		stats:   NewIdempotencyMetrics(),
		metrics: metrics,
	}
}

// CompositeKey is the dedup key for a command.
func CompositeKey(kind, commandID string) string {
	return kind + ":" + commandID
}

// IsDuplicate reports whether the command was already applied. A db error
// counts as not applied so an outage never blocks writes.
func (ic *IdempotencyChecker) IsDuplicate(kind string, commandID string) bool {
	key := CompositeKey(kind, commandID)
	if ic.lru.Contains(key) {
		ic.hit(kind, tierLRU)
		return true
	}
	if ic.db == nil {
		return false
	}

	start := time.Now()
	applied, err := ic.db.IsDuplicate(kind, commandID)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	switch {
	case err != nil:
		ic.stats.RecordTier2Error()
		return false
	case applied:
		ic.hit(kind, tierPostgres)
		ic.remember(key)
		return true
	default:
		return false
	}
}

// MarkProcessed records an applied command.
func (ic *IdempotencyChecker) MarkProcessed(kind string, commandID string) {
	ic.remember(CompositeKey(kind, commandID))
}

// Warm loads keys saved by Keys, oldest first.
func (ic *IdempotencyChecker) Warm(keys []string) {
	ic.lru.WarmFromKeys(keys)
	ic.observeSize()
}

// Keys returns the cached keys, oldest first.
func (ic *IdempotencyChecker) Keys() []string {
	return ic.lru.GetAllKeys()
}

// GetMetrics returns the in-process dedup counters.
func (ic *IdempotencyChecker) GetMetrics() *IdempotencyMetrics {
	return ic.stats
}

func (ic *IdempotencyChecker) remember(key string) {
	evicted := ic.lru.Evictions()
	ic.lru.Add(key)
	if ic.metrics != nil {
		if n := ic.lru.Evictions() - evicted; n > 0 {
			ic.metrics.DedupLRUEvictions.Add(float64(n))
		}
	}
	ic.observeSize()
}

func (ic *IdempotencyChecker) hit(kind, tier string) {
	ic.stats.RecordDuplicate(kind, tier)
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(kind, tier).Inc()
	}
}

func (ic *IdempotencyChecker) observeSize() {
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	}
}

// IdempotencyLRU is a bounded set of keys evicting the least recently used.
// Not safe for concurrent use.
type IdempotencyLRU struct {
	capacity  int
	index     map[string]*list.Element
	order     *list.List // front is most recent; values are strings
	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	return &IdempotencyLRU{
		capacity: capacity,
		index:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Contains reports membership and marks the key as recently used.
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, ok := lru.index[key]
	if ok {
		lru.order.MoveToFront(elem)
	}
	return ok
}

// Add inserts key as the most recent entry.
func (lru *IdempotencyLRU) Add(key string) {
	if elem, ok := lru.index[key]; ok {
		lru.order.MoveToFront(elem)
		return
	}
	lru.insert(key)
}

// WarmFromKeys inserts keys oldest first. Keys already present keep their
// position.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		if _, ok := lru.index[key]; !ok {
			lru.insert(key)
		}
	}
}

func (lru *IdempotencyLRU) insert(key string) {
	lru.index[key] = lru.order.PushFront(key)
	for lru.order.Len() > lru.capacity {
		oldest := lru.order.Back()
		lru.order.Remove(oldest)
		delete(lru.index, oldest.Value.(string))
		lru.evictions++
	}
}

// GetAllKeys returns every key, least recently used first, so the result
// can be fed back to WarmFromKeys.
func (lru *IdempotencyLRU) GetAllKeys() []string {
	keys := make([]string, 0, lru.order.Len())
	for e := lru.order.Back(); e != nil; e = e.Prev() {
		keys = append(keys, e.Value.(string))
	}
	return keys
}

func (lru *IdempotencyLRU) Size() int {
	return lru.order.Len()
}

func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}

type dedupKey struct {
	kind, tier string
}

// IdempotencyMetrics counts duplicates per kind and tier.
// Not safe for concurrent use.
type IdempotencyMetrics struct {
	duplicates  map[dedupKey]int64
	tier2Errors int64
}

func NewIdempotencyMetrics() *IdempotencyMetrics {
	return &IdempotencyMetrics{duplicates: make(map[dedupKey]int64)}
}

// RecordDuplicate counts a hit; tier is "lru" or "postgres".
func (m *IdempotencyMetrics) RecordDuplicate(kind string, tier string) {
	m.duplicates[dedupKey{kind, tier}]++
}

func (m *IdempotencyMetrics) RecordTier2Error() {
	m.tier2Errors++
}

func (m *IdempotencyMetrics) GetDuplicates(kind string) (lru int64, postgres int64) {
	return m.duplicates[dedupKey{kind, tierLRU}], m.duplicates[dedupKey{kind, tierPostgres}]
}

func (m *IdempotencyMetrics) GetTier2Errors() int64 {
	return m.tier2Errors
}
