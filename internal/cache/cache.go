// Package cache implements the content-addressed decision cache that makes
// Tier-3 judgments effectively deterministic: a prompt+context pair that
// has been judged once is answered from here forever after (within TTL).
//
// The cache persists as a single JSON snapshot rewritten on every
// mutation. Snapshot write errors are deliberately dropped: this is a
// best-effort cache, not a store of record, and the in-memory view stays
// authoritative for the process lifetime.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"go.uber.org/zap"
)

// Decisions stored in cache entries.
const (
	DecisionBlock = "BLOCK"
	DecisionAllow = "ALLOW"
)

// DefaultTTL is seven days, long enough that repeated probes stay cheap
// and short enough that policy-relevant drift ages out.
const DefaultTTL = 168 * time.Hour

const snapshotFile = "decisions.json"

// Entry is one cached Tier-3 judgment.
type Entry struct {
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	StoredAt   time.Time `json:"stored_at"`
}

// Stats summarizes cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// DecisionCache is the TTL-evicting decision store. Safe for concurrent
// use; a single mutex guards the map and the snapshot write, which is
// throughput-adequate because Tier 3 sees at most ~1% of traffic.
type DecisionCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	dir     string
	ttl     time.Duration
	hits    uint64
	misses  uint64
	logger  *zap.Logger

	// now is swappable in tests for TTL expiry.
	now func() time.Time
}

// New opens the cache rooted at dir, loading any prior snapshot. A corrupt
// or missing snapshot yields an empty cache rather than an error.
func New(dir string, ttl time.Duration, logger *zap.Logger) *DecisionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dir == "" {
		dir = ".cache/decisions"
	}

	c := &DecisionCache{
		entries: make(map[string]Entry),
		dir:     dir,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
	c.load()
	return c
}

// Key derives the content address for a prompt+context pair:
// SHA-256(prompt || "||" || canonical_json(context)). Canonicalization is
// RFC 8785, so semantically equal contexts share an address regardless of
// map iteration order.
func Key(prompt string, context map[string]any) string {
	canonical := "{}"
	if len(context) > 0 {
		raw, err := json.Marshal(context)
		if err == nil {
			if c, err := jcs.Transform(raw); err == nil {
				canonical = string(c)
			} else {
				canonical = string(raw)
			}
		}
	}
	sum := sha256.Sum256([]byte(prompt + "||" + canonical))
	return hex.EncodeToString(sum[:])
}

// Get returns the entry for prompt+context if present and unexpired.
// Expired entries are removed on lookup and the snapshot rewritten.
func (c *DecisionCache) Get(prompt string, context map[string]any) (Entry, bool) {
	key := Key(prompt, context)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	if c.now().Sub(entry.StoredAt) >= c.ttl {
		delete(c.entries, key)
		c.persistLocked()
		c.misses++
		return Entry{}, false
	}

	c.hits++
	return entry, true
}

// Put stores (overwriting) the entry for prompt+context and rewrites the
// snapshot.
func (c *DecisionCache) Put(prompt string, context map[string]any, decision string, confidence float64, reasoning string) {
	entry := Entry{
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  reasoning,
		StoredAt:   c.now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(prompt, context)] = entry
	c.persistLocked()
}

// Sweep removes every expired entry and returns the count removed.
func (c *DecisionCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.StoredAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.persistLocked()
	}
	return removed
}

// Clear drops every entry.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.persistLocked()
}

// Stats returns a snapshot of cache effectiveness.
func (c *DecisionCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

func (c *DecisionCache) snapshotPath() string {
	return filepath.Join(c.dir, snapshotFile)
}

func (c *DecisionCache) load() {
	data, err := os.ReadFile(c.snapshotPath())
	if err != nil {
		return
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("decision cache snapshot corrupt, starting empty", zap.Error(err))
		return
	}
	c.entries = entries
	c.logger.Info("decision cache loaded", zap.Int("entries", len(entries)))
}

// persistLocked writes the snapshot. Callers hold c.mu. Errors are logged
// at debug and otherwise dropped.
func (c *DecisionCache) persistLocked() {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Debug("decision cache dir create failed", zap.Error(err))
		return
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		c.logger.Debug("decision cache marshal failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(c.snapshotPath(), data, 0o644); err != nil {
		c.logger.Debug(fmt.Sprintf("decision cache write failed: %v", err))
	}
}
