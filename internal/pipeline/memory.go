package pipeline

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/pkg/pagination"
)

type memoryStore struct {
	mu         sync.RWMutex
	entries    []Entry
	pagination pagination.Config
}

// NewMemoryStore creates a process-local Store. Entries are listed
// newest first; sort fields in page requests are ignored.
func NewMemoryStore(pagination pagination.Config) Store {
	return &memoryStore{pagination: pagination}
}

func (m *memoryStore) Submit(_ context.Context, entry Entry) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.SourceAssessmentID == entry.SourceAssessmentID {
			return nil, ErrDuplicate
		}
	}
	m.entries = append(m.entries, entry)
	return &entry, nil
}

func (m *memoryStore) Find(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryStore) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Entry], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	matched := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if filters.match(e) && matchSearch(page.Search, e) {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b Entry) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})

	start, end := page.Window(len(matched))

	result := pagination.NewPageResult(matched[start:end], len(matched), page.Page, page.PageSize)
	return &result, nil
}

func (f Filters) match(e Entry) bool {
	if f.Stage != nil && string(e.Stage) != *f.Stage {
		return false
	}
	if f.Priority != nil && string(e.Priority) != *f.Priority {
		return false
	}
	if f.ClientReference != nil && (e.ClientReference == nil || *e.ClientReference != *f.ClientReference) {
		return false
	}
	if f.SourceAssessmentID != nil && e.SourceAssessmentID != *f.SourceAssessmentID {
		return false
	}
	return true
}

func matchSearch(search *string, e Entry) bool {
	if search == nil || *search == "" {
		return true
	}
	s := strings.ToLower(*search)
	if strings.Contains(strings.ToLower(e.ProductName), s) {
		return true
	}
	return e.ClientReference != nil && strings.Contains(strings.ToLower(*e.ClientReference), s)
}
