package directory

import (
	"context"
	"iter"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/repository"
)

// StoreIndex answers queries straight from the store, one page at a time.
type StoreIndex struct {
	store    store.Store
	pageSize int
}

var _ Index = (*StoreIndex)(nil)

// NewStoreIndex creates a StoreIndex reading pageSize rows per query.
func NewStoreIndex(s store.Store, pageSize int) *StoreIndex {
	if pageSize < 1 {
		pageSize = 100
	}
	return &StoreIndex{store: s, pageSize: pageSize}
}

// Search implements Index.
func (i *StoreIndex) Search(ctx context.Context, f Filter) iter.Seq2[domain.AgentRecord, error] {
	return func(yield func(domain.AgentRecord, error) bool) {
		after := f.After
		filter := f.storeFilter()
		for {
			page, err := i.store.ListAgents(ctx, filter, after, i.pageSize)
			if err != nil {
				yield(domain.AgentRecord{}, domain.Internal("failed to list agents", err))
				return
			}
			for _, agent := range page {
				if !yield(agent, nil) {
					return
				}
			}
			if len(page) < i.pageSize {
				return
			}
			after = page[len(page)-1].AgentName
		}
	}
}
