// Package session holds screening results for a single reviewer session.
// A session keeps single-product and batch histories for 24 hours after
// its last save; older records are treated as absent.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/internal/assessment"
)

// DefaultTTL is how long a session record stays readable after its last save.
const DefaultTTL = 24 * time.Hour

// Cache is the persisted session record. Histories are most-recent-first.
type Cache struct {
	SingleProductHistory []assessment.Product `json:"single_product_history"`
	BatchHistory         []assessment.Product `json:"batch_history"`
	LastPersistedAt      int64                `json:"last_persisted_at"`
}

// Empty returns a cache with no history.
func Empty() Cache {
	return Cache{
		SingleProductHistory: []assessment.Product{},
		BatchHistory:         []assessment.Product{},
	}
}

// Fresh reports whether the record is younger than ttl at now.
// A record aged exactly ttl is stale.
func (c *Cache) Fresh(now time.Time, ttl time.Duration) bool {
	if c.LastPersistedAt == 0 {
		return false
	}
	age := now.UnixMilli() - c.LastPersistedAt
	return age < ttl.Milliseconds()
}

// AppendSingle prepends p to the single-product history.
func (c *Cache) AppendSingle(p assessment.Product) {
	c.SingleProductHistory = append([]assessment.Product{p}, c.SingleProductHistory...)
}

// MergeBatch replaces an empty batch history with batch, or prepends batch
// ahead of the existing entries.
func (c *Cache) MergeBatch(batch []assessment.Product) {
	if len(batch) == 0 {
		return
	}
	if len(c.BatchHistory) == 0 {
		c.BatchHistory = append([]assessment.Product{}, batch...)
		return
	}
	merged := make([]assessment.Product, 0, len(batch)+len(c.BatchHistory))
	merged = append(merged, batch...)
	c.BatchHistory = append(merged, c.BatchHistory...)
}

// Replace swaps the assessment with p.ID in whichever history holds it.
// It reports false when no assessment matches.
func (c *Cache) Replace(p assessment.Product) bool {
	replaced := false
	for _, history := range [][]assessment.Product{c.SingleProductHistory, c.BatchHistory} {
		for i := range history {
			if history[i].ID == p.ID {
				history[i] = p
				replaced = true
			}
		}
	}
	return replaced
}

// Find returns a copy of the assessment with id.
func (c *Cache) Find(id uuid.UUID) (assessment.Product, bool) {
	for _, history := range [][]assessment.Product{c.SingleProductHistory, c.BatchHistory} {
		for i := range history {
			if history[i].ID == id {
				return history[i].Clone(), true
			}
		}
	}
	return assessment.Product{}, false
}

// Products returns every assessment held by the session.
func (c *Cache) Products() []assessment.Product {
	all := make([]assessment.Product, 0, len(c.SingleProductHistory)+len(c.BatchHistory))
	all = append(all, c.SingleProductHistory...)
	return append(all, c.BatchHistory...)
}

// Clone returns a deep copy of the cache.
func (c Cache) Clone() Cache {
	out := Cache{
		SingleProductHistory: cloneAll(c.SingleProductHistory),
		BatchHistory:         cloneAll(c.BatchHistory),
		LastPersistedAt:      c.LastPersistedAt,
	}
	return out
}

func cloneAll(products []assessment.Product) []assessment.Product {
	out := make([]assessment.Product, len(products))
	for i, p := range products {
		out[i] = p.Clone()
	}
	return out
}

// Update describes the changes a single Save applies, in order:
// batch merge, single append, then replacements.
type Update struct {
	Single  *assessment.Product
	Batch   []assessment.Product
	Replace []assessment.Product
}

// Apply applies u to c. Replacing an assessment the cache does not hold
// fails with ErrAssessment and leaves c partially updated; callers apply
// to a clone.
func (u Update) Apply(c *Cache) error {
	c.MergeBatch(u.Batch)
	if u.Single != nil {
		c.AppendSingle(*u.Single)
	}
	for _, p := range u.Replace {
		if !c.Replace(p) {
			return fmt.Errorf("%w: %s", ErrAssessment, p.ID)
		}
	}
	return nil
}
