package directory

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/repository"
)

// BleveIndex is the search-collaborator backend: an in-memory bleve index of
// agent facets kept current through registry change notifications. Hits are
// resolved against the store, which stays the source of truth, so a lagging
// index never returns a record that no longer matches.
type BleveIndex struct {
	mu       sync.Mutex
	index    bleve.Index
	store    store.Store
	pageSize int
	logger   *slog.Logger
}

var _ Index = (*BleveIndex)(nil)

// agentDocument is the indexed projection of an agent. Set values are lowercased.
type agentDocument struct {
	Skills       []string `json:"skills"`
	Protocols    []string `json:"protocols"`
	Tasks        []string `json:"tasks"`
	A2ACompliant bool     `json:"a2a_compliant"`
	Verified     bool     `json:"verified"`
	Active       bool     `json:"active"`
}

func buildIndexMapping() mapping.IndexMapping {
	agentMapping := bleve.NewDocumentMapping()

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	boolFieldMapping := bleve.NewBooleanFieldMapping()

	agentMapping.AddFieldMappingsAt("skills", keywordFieldMapping)
	agentMapping.AddFieldMappingsAt("protocols", keywordFieldMapping)
	agentMapping.AddFieldMappingsAt("tasks", keywordFieldMapping)
	agentMapping.AddFieldMappingsAt("a2a_compliant", boolFieldMapping)
	agentMapping.AddFieldMappingsAt("verified", boolFieldMapping)
	agentMapping.AddFieldMappingsAt("active", boolFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = agentMapping
	return indexMapping
}

// NewBleveIndex creates an empty in-memory index resolving hits against s.
func NewBleveIndex(s store.Store, pageSize int, logger *slog.Logger) (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	if pageSize < 1 {
		pageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BleveIndex{index: index, store: s, pageSize: pageSize, logger: logger}, nil
}

// Rebuild indexes every agent in the store.
func (b *BleveIndex) Rebuild(ctx context.Context) error {
	after := ""
	for {
		page, err := b.store.ListAgents(ctx, store.AgentFilter{}, after, b.pageSize)
		if err != nil {
			return fmt.Errorf("failed to list agents: %w", err)
		}
		batch := b.index.NewBatch()
		for i := range page {
			if err := batch.Index(page[i].AgentName, toDocument(&page[i])); err != nil {
				return fmt.Errorf("failed to index %s: %w", page[i].AgentName, err)
			}
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to apply index batch: %w", err)
		}
		if len(page) < b.pageSize {
			return nil
		}
		after = page[len(page)-1].AgentName
	}
}

// Upsert (re)indexes agent.
func (b *BleveIndex) Upsert(agent *domain.AgentRecord) error {
	return b.index.Index(agent.AgentName, toDocument(agent))
}

// Observe is a registry observer keeping the index current. Notifications
// may arrive out of commit order, so the record is re-read from the store and
// the stored version is indexed rather than the notified one.
func (b *BleveIndex) Observe(ctx context.Context, agent domain.AgentRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.store.GetAgent(context.WithoutCancel(ctx), agent.AgentName)
	if err != nil {
		b.logger.Warn("failed to reload agent for indexing", "agent_name", agent.AgentName, "error", err)
		return
	}
	if current == nil {
		if err := b.index.Delete(agent.AgentName); err != nil {
			b.logger.Warn("failed to drop agent from index", "agent_name", agent.AgentName, "error", err)
		}
		return
	}
	if err := b.Upsert(current); err != nil {
		b.logger.Warn("failed to index agent", "agent_name", agent.AgentName, "error", err)
	}
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func toDocument(agent *domain.AgentRecord) agentDocument {
	return agentDocument{
		Skills:       lowerAll(agent.Descriptor.Skills),
		Protocols:    lowerAll(agent.Descriptor.Protocols),
		Tasks:        lowerAll(agent.Descriptor.SupportedTasks),
		A2ACompliant: agent.Descriptor.A2ACompliant,
		Verified:     agent.Verified,
		Active:       agent.Active,
	}
}

func buildQuery(f Filter) query.Query {
	var conjuncts []query.Query
	if f.Skill != "" {
		q := bleve.NewPrefixQuery(strings.ToLower(f.Skill))
		q.SetField("skills")
		conjuncts = append(conjuncts, q)
	}
	if f.Protocol != "" {
		q := bleve.NewTermQuery(strings.ToLower(f.Protocol))
		q.SetField("protocols")
		conjuncts = append(conjuncts, q)
	}
	if f.Task != "" {
		q := bleve.NewTermQuery(strings.ToLower(f.Task))
		q.SetField("tasks")
		conjuncts = append(conjuncts, q)
	}
	for field, v := range map[string]*bool{
		"a2a_compliant": f.A2ACompliant,
		"verified":      f.Verified,
		"active":        f.Active,
	} {
		if v == nil {
			continue
		}
		q := bleve.NewBoolFieldQuery(*v)
		q.SetField(field)
		conjuncts = append(conjuncts, q)
	}
	if len(conjuncts) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

// Search implements Index.
func (b *BleveIndex) Search(ctx context.Context, f Filter) iter.Seq2[domain.AgentRecord, error] {
	return func(yield func(domain.AgentRecord, error) bool) {
		q := buildQuery(f)
		after := f.After
		for {
			req := bleve.NewSearchRequestOptions(q, b.pageSize, 0, false)
			req.SortBy([]string{"_id"})
			if after != "" {
				req.SearchAfter = []string{after}
			}
			res, err := b.index.SearchInContext(ctx, req)
			if err != nil {
				yield(domain.AgentRecord{}, domain.Internal("directory search failed", err))
				return
			}
			for _, hit := range res.Hits {
				agent, err := b.store.GetAgent(ctx, hit.ID)
				if err != nil {
					yield(domain.AgentRecord{}, domain.Internal("failed to load agent", err))
					return
				}
				if agent == nil || !f.Matches(agent) {
					continue
				}
				if !yield(*agent, nil) {
					return
				}
			}
			if len(res.Hits) < b.pageSize {
				return
			}
			after = res.Hits[len(res.Hits)-1].ID
		}
	}
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}
